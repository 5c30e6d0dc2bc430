package models

// Result is one organic web search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Place is a local business listing.
type Place struct {
	Title       string  `json:"title"`
	Address     string  `json:"address"`
	Category    string  `json:"category"`
	Rating      float64 `json:"rating"`
	RatingCount int     `json:"ratingCount"`
	Phone       string  `json:"phoneNumber"`
	Website     string  `json:"website"`
}
