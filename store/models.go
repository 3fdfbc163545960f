package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/seo-maskinen/backend/seo"
)

type Status string

const (
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Analysis is one row of the analyses table. Both scorers are translated into
// the same six scores; heuristic rows map headingStructure to h1,
// keywordDensity to content and urlStructure to technical.
type Analysis struct {
	ID                    string            `gorm:"primaryKey;size:36" json:"id"`
	UserID                string            `gorm:"index;size:64;not null" json:"user_id"`
	WebsiteURL            string            `gorm:"size:2048;not null" json:"website_url"`
	TargetKeyword         string            `gorm:"size:100" json:"target_keyword"`
	Status                Status            `gorm:"size:16;not null" json:"status"`
	Mode                  string            `gorm:"size:16;not null" json:"mode"`
	OverallScore          int               `json:"overall_score"`
	TitleScore            int               `json:"title_score"`
	H1Score               int               `json:"h1_score"`
	MetaScore             int               `json:"meta_score"`
	ContentScore          int               `json:"content_score"`
	TechnicalScore        int               `json:"technical_score"`
	Improvements          []seo.Improvement `gorm:"serializer:json" json:"improvements"`
	ContentIdeas          []string          `gorm:"serializer:json" json:"content_ideas"`
	QuickWins             []string          `gorm:"serializer:json" json:"quick_wins"`
	CrawlData             *seo.CrawlData    `gorm:"serializer:json" json:"crawl_data,omitempty"`
	ErrorMessage          string            `json:"error_message,omitempty"`
	PagesCrawled          int               `json:"pages_crawled"`
	ProcessingTimeSeconds float64           `json:"processing_time_seconds"`
	OpenAITokensUsed      int               `gorm:"column:openai_tokens_used" json:"openai_tokens_used"`
	CreatedAt             time.Time         `gorm:"index" json:"created_at"`
}

func (Analysis) TableName() string {
	return "analyses"
}

func (a *Analysis) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
