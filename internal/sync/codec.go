package sync

import (
	"encoding/json"

	"skygent.dev/skygent/internal/bsky"
)

// encodePost serializes a Post to the event_log payload format. JSON keeps
// the stored payload self-describing and trivially diffable in a sqlite
// browser, matching how the rest of the engine (filter AST, DSL config)
// already round-trips through encoding/json.
func encodePost(post *bsky.Post) ([]byte, error) {
	return json.Marshal(post)
}

// DecodePost deserializes an event_log payload back into a Post.
func DecodePost(payload []byte) (*bsky.Post, error) {
	var post bsky.Post
	if err := json.Unmarshal(payload, &post); err != nil {
		return nil, err
	}
	return &post, nil
}
