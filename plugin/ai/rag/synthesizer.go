package rag

import (
	"fmt"
	"strings"

	"github.com/hrygo/decade/store"
)

// LowConfidencePrefix marks captions the vision model is unsure about.
// Such captions never reach the index.
const LowConfidencePrefix = "[Low Confidence]"

const unknownPerson = "Unknown"

// Synthesize builds the searchable text of a record. Fields appear in a fixed
// order and only when present, joined with ". ".
func Synthesize(r *store.MemoryRecord) *IndexedDocument {
	var parts []string
	add := func(label, value string) {
		if value = strings.TrimSpace(value); value != "" {
			parts = append(parts, label+": "+value)
		}
	}

	add("Date", r.Date)
	add("Location", r.Location)
	add("Weather", r.Weather)
	add("Title", r.Title)

	var content []string
	caption := strings.TrimSpace(r.Caption)
	if caption != "" && !strings.HasPrefix(caption, LowConfidencePrefix) {
		content = append(content, "AI Description: "+caption)
	}
	if note := strings.TrimSpace(r.Note); note != "" {
		content = append(content, "User Note: "+note)
	}
	if len(content) > 0 {
		parts = append(parts, strings.Join(content, " "))
	}

	var people, emotions []string
	seen := make(map[string]bool)
	for _, face := range r.Faces {
		name := strings.TrimSpace(face.Person)
		if name == "" || name == unknownPerson {
			continue
		}
		if !seen[name] {
			seen[name] = true
			people = append(people, name)
		}
		if emotion := strings.TrimSpace(face.Emotion); emotion != "" {
			emotions = append(emotions, fmt.Sprintf("%s looks %s", name, emotion))
		}
	}
	add("People", strings.Join(people, ", "))
	add("Emotions", strings.Join(emotions, ", "))
	add("Mood", r.Mood)

	return &IndexedDocument{
		ID:   r.ID,
		Text: strings.Join(parts, ". "),
		Metadata: store.VectorMetadata{
			Date:      r.Date,
			Location:  r.Location,
			MediaType: r.MediaType,
			ImageURL:  r.ImageURL,
		},
	}
}
