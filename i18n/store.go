package i18n

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var ErrUnsupportedLanguage = errors.New("unsupported language")

// Supported lists the languages the product is translated into. The first
// entry is the fallback.
var Supported = []language.Tag{language.French, language.English}

var matcher = language.NewMatcher(Supported)

// Persister keeps the active language across restarts.
type Persister interface {
	Load() (string, error)
	Save(code string) error
}

// Store holds the process-wide active language. It is read at startup from
// the persisted preference (or detected), changed on explicit user request
// and persisted on every change.
type Store struct {
	mu        sync.RWMutex
	tag       language.Tag
	persister Persister
}

// NewStore initializes the active language from the persisted preference,
// then from detected (a LANG or Accept-Language style value), then falls
// back to the first supported language.
func NewStore(persister Persister, detected string) *Store {
	s := &Store{tag: Supported[0], persister: persister}

	if persister != nil {
		code, err := persister.Load()
		if err != nil {
			logrus.WithError(err).Warn("Failed to load persisted language, detecting instead")
		}
		if tag, ok := Match(code); ok {
			s.tag = tag
			logrus.WithField("language", code).Debug("Using persisted language")
			return s
		}
	}

	if tag, ok := Match(detected); ok {
		s.tag = tag
		logrus.WithField("language", tag.String()).Debug("Using detected language")
	}
	return s
}

// Match resolves a language code ("fr", "en-GB", "fr_FR.UTF-8",
// "da, en;q=0.8") to one of the supported languages.
func Match(code string) (language.Tag, bool) {
	code = normalize(code)
	if code == "" {
		return language.Und, false
	}
	tags, _, err := language.ParseAcceptLanguage(code)
	if err != nil || len(tags) == 0 {
		return language.Und, false
	}
	_, idx, confidence := matcher.Match(tags...)
	if confidence == language.No {
		return language.Und, false
	}
	return Supported[idx], true
}

func normalize(code string) string {
	code = strings.TrimSpace(code)
	if i := strings.IndexAny(code, ".@"); i >= 0 {
		code = code[:i]
	}
	if code == "C" || code == "POSIX" {
		return ""
	}
	return strings.ReplaceAll(code, "_", "-")
}

func (s *Store) Language() language.Tag {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tag
}

// Code returns the active language as a short code ("fr").
func (s *Store) Code() string {
	base, _ := s.Language().Base()
	return base.String()
}

// Set changes the active language and persists it immediately. The
// in-memory value is updated even when persisting fails; the error is
// returned so the caller can report it.
func (s *Store) Set(code string) error {
	tag, ok := Match(code)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedLanguage, code)
	}

	s.mu.Lock()
	s.tag = tag
	s.mu.Unlock()

	base, _ := tag.Base()
	log := logrus.WithField("language", base.String())
	if s.persister == nil {
		log.Info("Language changed")
		return nil
	}
	if err := s.persister.Save(base.String()); err != nil {
		log.WithError(err).Error("Failed to persist language")
		return err
	}
	log.Info("Language changed and persisted")
	return nil
}

func (s *Store) Printer() *message.Printer {
	return message.NewPrinter(s.Language())
}

// Sprintf formats a catalog message in the active language.
func (s *Store) Sprintf(key message.Reference, args ...any) string {
	return s.Printer().Sprintf(key, args...)
}

type contextKey struct{}

var fallback = &Store{tag: Supported[0]}

func WithStore(ctx context.Context, s *Store) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the store injected in ctx, or a non-persisting store
// on the fallback language.
func FromContext(ctx context.Context) *Store {
	if s, ok := ctx.Value(contextKey{}).(*Store); ok && s != nil {
		return s
	}
	return fallback
}

// T formats a catalog message in the language of the store carried by ctx.
func T(ctx context.Context, key message.Reference, args ...any) string {
	return FromContext(ctx).Sprintf(key, args...)
}
