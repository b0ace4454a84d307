package events

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Delimiter separates the events of an events file.
const Delimiter = "$$$"

// Split cuts text on the delimiter and drops blank entries.
func Split(text string) []string {
	var events []string
	for _, part := range strings.Split(text, Delimiter) {
		if part = strings.TrimSpace(part); part != "" {
			events = append(events, part)
		}
	}
	return events
}

func ReadFile(eventsFile string) ([]string, error) {
	data, err := os.ReadFile(eventsFile)
	if err != nil {
		return nil, err
	}
	events := Split(string(data))
	if len(events) == 0 {
		return nil, fmt.Errorf("%s: no events found", eventsFile)
	}
	return events, nil
}

const DefaultSystemPrompt = `You are an assistant that reads newsletters about {places} and extracts the events they announce.
Today is {date}. Resolve relative dates like "next Friday" against today.
Only use facts stated in the text. When a detail is missing, leave it out.`

const DefaultEventPrompt = `Extract the event from the following text:

{event}`

// SystemPrompt fills {places} and {date} of a system prompt template.
func SystemPrompt(template string, places []string, date time.Time) string {
	return strings.NewReplacer(
		"{places}", strings.Join(places, ", "),
		"{date}", date.Format(time.DateOnly),
	).Replace(template)
}

// PromptTemplate returns a prompt renderer replacing {event} with the raw event.
func PromptTemplate(template string) func(raw string) string {
	return func(raw string) string {
		return strings.ReplaceAll(template, "{event}", raw)
	}
}
