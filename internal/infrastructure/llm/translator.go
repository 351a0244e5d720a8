package llm

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"NewsRadar/internal/ports"
)

const translationTTL = time.Hour

// Translator rewrites text into a target language through the chat client,
// caching results in Redis. Every failure path returns the input unchanged.
type Translator struct {
	chat     *ChatClient
	redisURL string
	logger   *slog.Logger

	once  sync.Once
	cache *redis.Client
}

var _ ports.Translator = (*Translator)(nil)

// NewTranslator builds a translator; empty redisURL disables caching.
func NewTranslator(chat *ChatClient, redisURL string, logger *slog.Logger) *Translator {
	return &Translator{chat: chat, redisURL: redisURL, logger: logger}
}

// Translate returns text rendered in lang, or text itself when the chat
// client is disabled or anything goes wrong.
func (t *Translator) Translate(ctx context.Context, text, lang string) string {
	text = strings.TrimSpace(text)
	if text == "" || lang == "" {
		return text
	}

	key := cacheKey(lang, text)
	if cache := t.redis(); cache != nil {
		if cached, err := cache.Get(ctx, key).Result(); err == nil && cached != "" {
			return cached
		} else if err != nil && err != redis.Nil {
			t.debug("translation cache read failed", "error", err)
		}
	}

	if !t.chat.Enabled() {
		return text
	}

	prompt := fmt.Sprintf("Translate into %s, concise and natural. Do not add anything and do not lose numbers or names:\n%s", lang, text)
	out, err := t.chat.Complete(ctx, "", prompt, 0.0)
	if err != nil {
		t.debug("translation failed", "error", err)
		return text
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return text
	}

	if cache := t.redis(); cache != nil {
		if err := cache.Set(ctx, key, out, translationTTL).Err(); err != nil {
			t.debug("translation cache write failed", "error", err)
		}
	}
	return out
}

// redis lazily opens the cache connection on first use.
func (t *Translator) redis() *redis.Client {
	t.once.Do(func() {
		if t.redisURL == "" {
			return
		}
		opts, err := redis.ParseURL(t.redisURL)
		if err != nil {
			t.debug("invalid redis url", "error", err)
			return
		}
		t.cache = redis.NewClient(opts)
	})
	return t.cache
}

func (t *Translator) debug(msg string, args ...any) {
	if t.logger != nil {
		t.logger.Debug(msg, args...)
	}
}

func cacheKey(lang, text string) string {
	sum := sha1.Sum([]byte(lang + ":" + text))
	return "tr:" + hex.EncodeToString(sum[:])
}
