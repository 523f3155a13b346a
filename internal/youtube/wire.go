package youtube

// Wire types mirroring the upstream JSON shapes. Only the fields the
// pipeline consumes are declared; numeric statistics arrive as strings.

type thumbnailJSON struct {
	URL string `json:"url"`
}

type snippetJSON struct {
	PublishedAt  string                   `json:"publishedAt"`
	ChannelID    string                   `json:"channelId"`
	Title        string                   `json:"title"`
	Description  string                   `json:"description"`
	ChannelTitle string                   `json:"channelTitle"`
	Thumbnails   map[string]thumbnailJSON `json:"thumbnails"`
	Tags         []string                 `json:"tags"`
	CategoryID   string                   `json:"categoryId"`
	Language     string                   `json:"defaultAudioLanguage"`
	ResourceID   struct {
		VideoID string `json:"videoId"`
	} `json:"resourceId"`
}

type playlistItemJSON struct {
	Snippet        snippetJSON `json:"snippet"`
	ContentDetails struct {
		VideoID string `json:"videoId"`
	} `json:"contentDetails"`
}

type playlistItemsResponse struct {
	Items         []playlistItemJSON `json:"items"`
	NextPageToken string             `json:"nextPageToken"`
}

type videoJSON struct {
	ID             string      `json:"id"`
	Snippet        snippetJSON `json:"snippet"`
	ContentDetails struct {
		Duration   string `json:"duration"`
		Definition string `json:"definition"`
		Caption    string `json:"caption"` // "true"/"false" on the wire
	} `json:"contentDetails"`
	Statistics struct {
		ViewCount    string `json:"viewCount"`
		LikeCount    string `json:"likeCount"`
		CommentCount string `json:"commentCount"`
	} `json:"statistics"`
	Status struct {
		PrivacyStatus       string `json:"privacyStatus"`
		Embeddable          bool   `json:"embeddable"`
		PublicStatsViewable bool   `json:"publicStatsViewable"`
	} `json:"status"`
	TopicDetails struct {
		TopicCategories []string `json:"topicCategories"`
	} `json:"topicDetails"`
}

type videosResponse struct {
	Items []videoJSON `json:"items"`
}

type searchItemJSON struct {
	ID struct {
		VideoID   string `json:"videoId"`
		ChannelID string `json:"channelId"`
	} `json:"id"`
	Snippet snippetJSON `json:"snippet"`
}

type searchResponse struct {
	Items         []searchItemJSON `json:"items"`
	NextPageToken string           `json:"nextPageToken"`
}
