package models

// ScrapingSettings are the runtime switches stored in scraping_settings.
type ScrapingSettings struct {
	ScrapingEnabled      bool `json:"scraping_enabled"`
	MaxConcurrentScrapes int  `json:"max_concurrent_scrapes"`
	ScrapingDelay        int  `json:"scraping_delay"` // seconds
	QualityCheckEnabled  bool `json:"quality_check_enabled"`
}

func DefaultScrapingSettings() ScrapingSettings {
	return ScrapingSettings{
		ScrapingEnabled:      true,
		MaxConcurrentScrapes: 3,
		ScrapingDelay:        5,
		QualityCheckEnabled:  true,
	}
}
