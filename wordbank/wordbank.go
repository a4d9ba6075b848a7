// Package wordbank supplies the (civilian_word, undercover_word) pairs
// drawn at RoleAssignment. Loaded once from a JSON file at startup.
package wordbank

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"

	"github.com/undercover/server/models"
)

type wordBankFile struct {
	Categories map[string][]models.WordPair `json:"categories"`
}

// Bank is read-only once New returns; safe for concurrent use by many rooms.
type Bank struct {
	categories map[string][]models.WordPair
	all        []models.WordPair
}

// New loads the word bank from path, falling back to a small built-in set
// on any read/parse failure so the server can still start.
func New(path string) *Bank {
	b := &Bank{categories: make(map[string][]models.WordPair)}
	if err := b.loadFromFile(path); err != nil {
		b.loadDefault()
	}
	return b
}

func (b *Bank) loadFromFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read word bank file: %w", err)
	}

	var data wordBankFile
	if err := json.Unmarshal(content, &data); err != nil {
		return fmt.Errorf("parse word bank file: %w", err)
	}

	b.categories = data.Categories
	b.rebuildAll()
	return nil
}

func (b *Bank) loadDefault() {
	b.categories = map[string][]models.WordPair{
		"食物": {
			{CivilianWord: "苹果", UndercoverWord: "梨", Similarity: 0.8, Difficulty: models.DifficultyEasy},
			{CivilianWord: "香蕉", UndercoverWord: "橙子", Similarity: 0.7, Difficulty: models.DifficultyEasy},
		},
		"电子产品": {
			{CivilianWord: "手机", UndercoverWord: "平板", Similarity: 0.7, Difficulty: models.DifficultyEasy},
			{CivilianWord: "电脑", UndercoverWord: "笔记本", Similarity: 0.8, Difficulty: models.DifficultyEasy},
		},
	}
	b.rebuildAll()
}

func (b *Bank) rebuildAll() {
	b.all = b.all[:0]
	for _, words := range b.categories {
		b.all = append(b.all, words...)
	}
}

// DrawRandom returns a uniformly random pair from the whole bank.
func (b *Bank) DrawRandom() (models.WordPair, bool) {
	if len(b.all) == 0 {
		return models.WordPair{}, false
	}
	return b.all[rand.Intn(len(b.all))], true
}

// DrawFromCategory draws uniformly from one named category.
func (b *Bank) DrawFromCategory(name string) (models.WordPair, bool) {
	words := b.categories[name]
	if len(words) == 0 {
		return models.WordPair{}, false
	}
	return words[rand.Intn(len(words))], true
}

// DrawByDifficulty draws uniformly among pairs at a given difficulty.
func (b *Bank) DrawByDifficulty(d models.Difficulty) (models.WordPair, bool) {
	return drawWhere(b.all, func(p models.WordPair) bool { return p.Difficulty == d })
}

// DrawByMinSimilarity draws uniformly among pairs at or above a similarity threshold.
func (b *Bank) DrawByMinSimilarity(min float32) (models.WordPair, bool) {
	return drawWhere(b.all, func(p models.WordPair) bool { return p.Similarity >= min })
}

func drawWhere(pairs []models.WordPair, pred func(models.WordPair) bool) (models.WordPair, bool) {
	var eligible []models.WordPair
	for _, p := range pairs {
		if pred(p) {
			eligible = append(eligible, p)
		}
	}
	if len(eligible) == 0 {
		return models.WordPair{}, false
	}
	return eligible[rand.Intn(len(eligible))], true
}

// Categories lists the loaded category names.
func (b *Bank) Categories() []string {
	names := make([]string, 0, len(b.categories))
	for name := range b.categories {
		names = append(names, name)
	}
	return names
}

// Validate reports every pair whose invariant (civilian_word != undercover_word,
// similarity in [0,1]) is violated.
func (b *Bank) Validate() []string {
	var errs []string
	for category, words := range b.categories {
		if len(words) == 0 {
			errs = append(errs, fmt.Sprintf("category %q has no words", category))
		}
		for i, w := range words {
			if w.CivilianWord == "" || w.UndercoverWord == "" {
				errs = append(errs, fmt.Sprintf("category %q pair %d has an empty word", category, i))
			}
			if w.CivilianWord == w.UndercoverWord {
				errs = append(errs, fmt.Sprintf("category %q pair %d: civilian_word == undercover_word", category, i))
			}
			if w.Similarity < 0 || w.Similarity > 1 {
				errs = append(errs, fmt.Sprintf("category %q pair %d: similarity out of range", category, i))
			}
		}
	}
	return errs
}
