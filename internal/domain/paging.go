package domain

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 500
)

type Paging struct {
	Page  int `form:"page" binding:"omitempty,gte=1"`
	Limit int `form:"limit" binding:"omitempty,gte=1,lte=500"`
}

// Normalize fills zero values with page 1 and the given default limit.
func (p Paging) Normalize(defaultLimit int) Paging {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = defaultLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

func (p Paging) Offset() int {
	return (p.Page - 1) * p.Limit
}

type PageResult[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}
