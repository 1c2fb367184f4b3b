package extract

import (
	"crypto/rand"
	"log/slog"
	"slices"
	"time"
	"unicode"

	"github.com/ppiankov/entrole/internal/extract/adapters"
	"github.com/ppiankov/entrole/internal/model"
)

const (
	idLength   = 4
	idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	dateLayout = "2006-01-02"
)

// Market-listing types that make an item an enterprise
var stockTypes = map[string]bool{
	"stockCN":  true,
	"stockHK":  true,
	"stockUS":  true,
	"stockNTB": true,
	"stockTW":  true,
	"stockFN":  true,
}

// Instrument types that are never entities of interest
var excludedTypes = map[string]bool{
	"bond":             true,
	"commodity":        true,
	"bankWealthManage": true,
	"insurance":        true,
	"options":          true,
	"nz":               true,
	"module":           true,
}

// Coarse categories dropped outright
var excludedNerTypes = map[string]bool{
	"post":  true,
	"code":  true,
	"index": true,
}

// Result is the output of one normalization pass. Locations and References
// are computed but not part of the public bundle.
type Result struct {
	Bundle     *model.EntityBundle
	Locations  []model.Location
	References []string
}

// Normalizer turns raw NER output into typed, deduplicated entity lists
type Normalizer struct {
	registry *adapters.Registry
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// NewNormalizer creates a new normalizer
func NewNormalizer(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Normalizer{
		registry: adapters.NewRegistry(),
		logger:   logger,
		now:      time.Now,
		newID:    randomID,
	}
}

// NormalizeBytes decodes raw service bytes and normalizes them
func (n *Normalizer) NormalizeBytes(raw []byte) (*Result, error) {
	payload, err := decodePayload(n.registry, raw)
	if err != nil {
		return nil, err
	}
	return n.Normalize(payload), nil
}

// Normalize classifies every item in encounter order
func (n *Normalizer) Normalize(payload *model.NerPayload) *Result {
	p := &pass{
		bundle:     model.NewEntityBundle(n.now().Format(dateLayout)),
		enterprise: make(map[string]int),
		seen:       make(map[string]map[string]bool),
		refs:       make(map[string]bool),
		used:       make(map[string]bool),
		newID:      n.newID,
	}

	items := payload.Items()
	for _, item := range items {
		p.add(item)
	}

	n.logger.Debug("normalized NER payload",
		"items", len(items),
		"enterprises", len(p.bundle.Enterprises),
		"times", len(p.bundle.Times),
		"persons", len(p.bundle.Persons),
		"locations", len(p.locations),
		"references", len(p.references))

	return &Result{
		Bundle:     p.bundle,
		Locations:  p.locations,
		References: p.references,
	}
}

// pass holds the dedupe state of one Normalize call
type pass struct {
	bundle     *model.EntityBundle
	locations  []model.Location
	references []string

	enterprise map[string]int             // name → index in bundle.Enterprises
	seen       map[string]map[string]bool // nerType → surface texts already taken
	refs       map[string]bool
	used       map[string]bool // ids handed out in this pass
	newID      func() string
}

func (p *pass) add(item model.RawNerItem) {
	if excludedTypes[item.Type] {
		return
	}

	switch {
	case item.NerType == "enterprise" || (stockTypes[item.Type] && item.Entity != ""):
		p.addEnterprise(item)
	case item.NerType == "time":
		if p.firstSighting("time", item.Entity) {
			p.bundle.Times = append(p.bundle.Times, model.TimeEntity{ID: p.id(), Raw: item.Entity})
		}
	case item.NerType == "location":
		if p.firstSighting("location", item.Entity) {
			p.locations = append(p.locations, model.Location{ID: p.id(), Location: item.Entity})
		}
	case item.NerType == "person":
		if p.firstSighting("person", item.Entity) {
			p.bundle.Persons = append(p.bundle.Persons, model.Person{ID: p.id(), Name: item.Entity})
		}
	case excludedNerTypes[item.NerType]:
		return
	default:
		p.addReference(item.Entity)
		p.addReference(item.ID)
	}
}

func (p *pass) addEnterprise(item model.RawNerItem) {
	i, ok := p.enterprise[item.Entity]
	if !ok {
		p.enterprise[item.Entity] = len(p.bundle.Enterprises)
		p.bundle.Enterprises = append(p.bundle.Enterprises, model.Enterprise{
			ID:    p.id(),
			Name:  item.Entity,
			Codes: []string{},
		})
		i = len(p.bundle.Enterprises) - 1
	}

	if item.ID == "" || isDigits(item.ID) {
		return
	}
	record := &p.bundle.Enterprises[i]
	if !slices.Contains(record.Codes, item.ID) {
		record.Codes = append(record.Codes, item.ID)
	}
}

// firstSighting records text under kind and reports whether it is new.
// Empty text is never recorded.
func (p *pass) firstSighting(kind, text string) bool {
	if text == "" {
		return false
	}
	texts, ok := p.seen[kind]
	if !ok {
		texts = make(map[string]bool)
		p.seen[kind] = texts
	}
	if texts[text] {
		return false
	}
	texts[text] = true
	return true
}

func (p *pass) addReference(value string) {
	if value == "" || isDigits(value) || p.refs[value] {
		return
	}
	p.refs[value] = true
	p.references = append(p.references, value)
}

// id returns a fresh id not yet used in this pass
func (p *pass) id() string {
	for {
		id := p.newID()
		if !p.used[id] {
			p.used[id] = true
			return id
		}
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// randomID returns a short opaque token of uppercase letters and digits
func randomID() string {
	buf := make([]byte, idLength)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	for i, b := range buf {
		buf[i] = idAlphabet[int(b)%len(idAlphabet)]
	}
	return string(buf)
}
