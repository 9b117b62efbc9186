package research

// Stats counts research activity for one unit of work. Each researcher and
// study receives its own value and the orchestrator merges them at fan-in
// points; nothing here is shared across goroutines.
type Stats struct {
	WebSearches    int `json:"web_searches"`
	URLsFetched    int `json:"urls_fetched"`
	PagesRead      int `json:"pages_read"`
	NewsSearches   int `json:"news_searches"`
	NewsArticles   int `json:"news_articles"`
	SocialQueries  int `json:"social_queries"`
	ReasoningCalls int `json:"reasoning_calls"`
	StudiesRun     int `json:"studies_run"`
	QAClusters     int `json:"qa_clusters"`

	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// Merge folds other into s.
func (s *Stats) Merge(other Stats) {
	s.WebSearches += other.WebSearches
	s.URLsFetched += other.URLsFetched
	s.PagesRead += other.PagesRead
	s.NewsSearches += other.NewsSearches
	s.NewsArticles += other.NewsArticles
	s.SocialQueries += other.SocialQueries
	s.ReasoningCalls += other.ReasoningCalls
	s.StudiesRun += other.StudiesRun
	s.QAClusters += other.QAClusters
	s.PromptTokens += other.PromptTokens
	s.CompletionTokens += other.CompletionTokens
	s.CostUSD += other.CostUSD
}

// HumanHours estimates how long the same research would take a person:
// 8 min per web search, 5 min per page read, 3 min per news article,
// 15 min per reasoning pass, 45 min per study, 30 min per QA cluster,
// plus writing time that scales with depth.
func (s Stats) HumanHours(depth Depth) float64 {
	minutes := float64(s.WebSearches)*8 +
		float64(s.PagesRead)*5 +
		float64(s.NewsArticles)*3 +
		float64(s.ReasoningCalls)*15 +
		float64(s.StudiesRun)*45 +
		float64(s.QAClusters)*30
	switch depth {
	case DepthDeep:
		minutes += 120
	case DepthStandard:
		minutes += 30
	}
	return minutes / 60
}
