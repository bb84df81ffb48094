package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
)

// Maintenance commands for the release store. Releases are handled as raw
// JSON maps so fields this tool does not know about survive the rewrite.

func main() {
	if len(os.Args) < 3 {
		log.Fatal("Usage: migrate <backfill-ids|remove-duplicates> <store-file>")
	}

	command := os.Args[1]
	storePath := os.Args[2]

	switch command {
	case "backfill-ids":
		if err := backfillIDs(storePath); err != nil {
			log.Fatal(err)
		}
	case "remove-duplicates":
		if err := removeDuplicates(storePath); err != nil {
			log.Fatal(err)
		}
	default:
		log.Fatalf("Unknown command %q", command)
	}
}

type storeDocument struct {
	LastUpdated json.RawMessage   `json:"lastUpdated,omitempty"`
	Releases    []json.RawMessage `json:"releases"`
}

func loadStore(path string) (*storeDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading store %s: %w", path, err)
	}
	var doc storeDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing store %s: %w", path, err)
	}
	return &doc, nil
}

func saveStore(path string, doc *storeDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling store: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

func releaseFields(raw json.RawMessage) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func stringField(fields map[string]any, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

// releaseKey identifies a release for dedup and id purposes.
func releaseKey(fields map[string]any) (tool, version string) {
	return stringField(fields, "tool"), strings.TrimPrefix(stringField(fields, "version"), "v")
}

// backfillIDs assigns "<tool>-<version>" ids to releases missing one.
func backfillIDs(storePath string) error {
	doc, err := loadStore(storePath)
	if err != nil {
		return err
	}

	changed := 0
	for i, raw := range doc.Releases {
		fields, err := releaseFields(raw)
		if err != nil {
			log.Printf("Skipping unparseable release %d: %v", i, err)
			continue
		}
		if stringField(fields, "id") != "" {
			continue
		}

		tool, version := releaseKey(fields)
		if tool == "" || version == "" {
			log.Printf("Release %d has no tool/version, skipping", i)
			continue
		}

		id := fmt.Sprintf("%s-%s", tool, version)
		fields["id"] = id
		updated, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("re-marshaling release %d: %w", i, err)
		}
		doc.Releases[i] = updated
		changed++
		log.Printf("Assigned id %s", id)
	}

	if changed == 0 {
		log.Printf("All releases already carry ids")
		return nil
	}

	log.Printf("Backfilled %d ids", changed)
	return saveStore(storePath, doc)
}

// removeDuplicates drops repeated tool+version entries, keeping the first
// and asking before each removal.
func removeDuplicates(storePath string) error {
	doc, err := loadStore(storePath)
	if err != nil {
		return err
	}

	seen := make(map[string]int)
	reader := bufio.NewReader(os.Stdin)
	var kept []json.RawMessage
	removed := 0

	for i, raw := range doc.Releases {
		fields, err := releaseFields(raw)
		if err != nil {
			kept = append(kept, raw)
			continue
		}

		tool, version := releaseKey(fields)
		key := tool + " " + version
		if tool == "" || version == "" {
			kept = append(kept, raw)
			continue
		}

		first, dup := seen[key]
		if !dup {
			seen[key] = i
			kept = append(kept, raw)
			continue
		}

		fmt.Printf("\nDuplicate of %s (first at index %d):\n", key, first)
		if confirmDelete(reader, key) {
			removed++
			fmt.Printf("  REMOVED: %s\n", key)
		} else {
			kept = append(kept, raw)
			fmt.Printf("  SKIP: %s\n", key)
		}
	}

	fmt.Printf("\nRemoved %d duplicate releases\n", removed)
	if removed == 0 {
		return nil
	}

	doc.Releases = kept
	return saveStore(storePath, doc)
}

func confirmDelete(reader *bufio.Reader, key string) bool {
	for {
		fmt.Printf("  DELETE duplicate %s? [y/N]: ", key)
		input, err := reader.ReadString('\n')
		if err != nil {
			log.Printf("Error reading input: %v", err)
			return false
		}
		response := strings.ToLower(strings.TrimSpace(input))
		switch response {
		case "y", "yes":
			return true
		case "n", "no", "":
			return false
		default:
			fmt.Println("  Please answer y or n")
		}
	}
}
