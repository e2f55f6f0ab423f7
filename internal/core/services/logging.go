package services

import (
	"encoding/json"
	"log"
	"time"
)

// logEvent writes one structured JSON log line for a domain event
func logEvent(event string, fields map[string]interface{}) {
	entry := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		entry[k] = v
	}
	entry["event"] = event
	entry["timestamp"] = time.Now().Format(time.RFC3339)

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		log.Printf("Failed to marshal %s log entry: %v", event, err)
		return
	}
	log.Printf("%s", string(jsonBytes))
}
