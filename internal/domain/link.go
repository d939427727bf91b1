package domain

import "errors"

var (
	ErrLinkNotFound      = errors.New("link not found")
	ErrSourceUnavailable = errors.New("link source unavailable")
	ErrInvalidRecord     = errors.New("invalid link record")
)

// Link is one row of the link table as seen by the resolver.
type Link struct {
	RecordID    string `db:"record_id" json:"id" mapstructure:"id"`
	Name        string `db:"name" json:"name" mapstructure:"name"`
	Key         string `db:"link_key" json:"uid" mapstructure:"uid"`
	ResolvedKey string `db:"resolved_key" json:"resolvedUid" mapstructure:"resolved_uid"`
	TargetURL   string `db:"target_url" json:"url" mapstructure:"url"`
	Enabled     bool   `db:"enabled" json:"enabled" mapstructure:"enabled"`
}

type ResolutionStatus string

const (
	StatusFound    ResolutionStatus = "found"
	StatusNotFound ResolutionStatus = "not_found"
)

// Resolution is the outcome of a lookup: either Found with a URL or NotFound.
type Resolution struct {
	Status ResolutionStatus `json:"status"`
	URL    string           `json:"url,omitempty"`
}

func Found(url string) Resolution {
	return Resolution{Status: StatusFound, URL: url}
}

func NotFound() Resolution {
	return Resolution{Status: StatusNotFound}
}

func (r Resolution) IsFound() bool {
	return r.Status == StatusFound
}
