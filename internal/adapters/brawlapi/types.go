package brawlapi

// Wire types for the subset of the upstream API the poller reads.

type clubMembersResponse struct {
	Items *[]clubMember `json:"items"`
}

type clubMember struct {
	Tag  string `json:"tag"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type playerResponse struct {
	Tag      string        `json:"tag"`
	Name     string        `json:"name"`
	Trophies int           `json:"trophies"`
	Icon     playerIcon    `json:"icon"`
	Brawlers []brawlerStat `json:"brawlers"`
}

type playerIcon struct {
	ID int `json:"id"`
}

type brawlerStat struct {
	Name     string `json:"name"`
	Trophies int    `json:"trophies"`
}

type battlelogResponse struct {
	Items []battlelogEntry `json:"items"`
}

type battlelogEntry struct {
	Battle *battle `json:"battle"`
}

type battle struct {
	Type  string           `json:"type"`
	Teams [][]battlePlayer `json:"teams"`
}

type battlePlayer struct {
	Tag     string        `json:"tag"`
	Brawler battleBrawler `json:"brawler"`
}

type battleBrawler struct {
	Trophies int `json:"trophies"`
}

type rankingsResponse struct {
	Items []rankingEntry `json:"items"`
}

type rankingEntry struct {
	Tag      string `json:"tag"`
	Trophies int    `json:"trophies"`
}
