package database

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode"
)

// BadWordsURL is the public list used to screen display and organization names
const BadWordsURL = "https://raw.githubusercontent.com/LDNOOBW/List-of-Dirty-Naughty-Obscene-and-Otherwise-Bad-Words/refs/heads/master/en"

// SeedBadWords downloads the bad words list once; it is a no-op when the table is already populated
func (db *DB) SeedBadWords(ctx context.Context, url string) error {
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bad_words").Scan(&count); err != nil {
		return fmt.Errorf("failed to check bad words count: %w", err)
	}
	if count > 0 {
		log.Printf("Bad words filter already populated with %d words", count)
		return nil
	}

	log.Println("Downloading bad words list...")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build bad words request: %w", err)
	}
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download bad words list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status code from bad words URL: %d", resp.StatusCode)
	}

	added, err := db.LoadBadWords(ctx, resp.Body)
	if err != nil {
		return err
	}
	log.Printf("Bad words filter populated with %d words", added)
	return nil
}

// LoadBadWords inserts one word per line from r, skipping blanks and words already stored
func (db *DB) LoadBadWords(ctx context.Context, r io.Reader) (int, error) {
	seen := make(map[string]bool)
	var words []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		word := strings.TrimSpace(strings.ToLower(scanner.Text()))
		if word == "" || seen[word] {
			continue
		}
		seen[word] = true
		words = append(words, word)
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("error reading bad words: %w", err)
	}

	added := 0
	err := db.WithTx(ctx, func(tx *Tx) error {
		for _, word := range words {
			var exists int
			if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM bad_words WHERE word = ?", word).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check bad word: %w", err)
			}
			if exists > 0 {
				continue
			}
			if _, err := tx.ExecContext(ctx, "INSERT INTO bad_words (word) VALUES (?)", word); err != nil {
				return fmt.Errorf("failed to insert bad word: %w", err)
			}
			added++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// ContainsBadWord reports whether any word of text is on the bad words list
func (db *DB) ContainsBadWord(ctx context.Context, text string) (bool, error) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, word := range words {
		var count int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bad_words WHERE word = ?", word).Scan(&count); err != nil {
			return false, fmt.Errorf("failed to check bad word: %w", err)
		}
		if count > 0 {
			log.Printf("Bad word detected in %q", text)
			return true, nil
		}
	}
	return false, nil
}
