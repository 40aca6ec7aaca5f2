package lastfm

// Tag is one user-applied artist tag. Last.fm lists tags most popular first.
type Tag struct {
	Name string `json:"name"`
}

// topTagsBody is the artist.getTopTags payload.
type topTagsBody struct {
	TopTags struct {
		Tags []Tag `json:"tag"`
	} `json:"toptags"`
}

// errorBody is the payload Last.fm sends in place of a result.
type errorBody struct {
	Code    int    `json:"error"`
	Message string `json:"message"`
}
