package bans

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/quarryhost/quarry/pkg/observability"
)

// messageSet is the on-disk shape of the denial message file.
type messageSet struct {
	Global    string `yaml:"global"`
	Resource  string `yaml:"resource"`
	Forum     string `yaml:"forum"`
	Fallback  string `yaml:"fallback"`
	Permanent string `yaml:"permanent"`
	Until     string `yaml:"until"` // format string receiving the expiry timestamp
}

func defaultMessages() messageSet {
	return messageSet{
		Global:    "Your account has been banned from the platform and cannot perform any actions. If you believe this is a mistake, submit an appeal.",
		Resource:  "You are banned from resource operations (creating, editing, or deleting projects and uploading versions). If you believe this is a mistake, submit an appeal.",
		Forum:     "You are banned from social interaction (comments, posts, wiki edits, and messages). If you believe this is a mistake, submit an appeal.",
		Fallback:  "Your account has been banned. If you believe this is a mistake, submit an appeal.",
		Permanent: " This ban is permanent.",
		Until:     " The ban lifts at %s.",
	}
}

// Catalog renders *BanError values into user-facing denial messages. The
// error itself carries only the kind and facts; wording lives here, at the
// boundary, and can be swapped by operators via a YAML file that is
// hot-reloaded on change.
type Catalog struct {
	mu       sync.RWMutex
	messages messageSet
	path     string
	logger   *observability.Logger
}

// NewCatalog creates a catalog with the built-in messages.
func NewCatalog(logger *observability.Logger) *Catalog {
	return &Catalog{messages: defaultMessages(), logger: logger}
}

// LoadFile replaces the catalog's messages from a YAML file. Empty fields
// keep their built-in value.
func (c *Catalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read message file: %w", err)
	}
	var loaded messageSet
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("failed to parse message file: %w", err)
	}

	merged := defaultMessages()
	if loaded.Global != "" {
		merged.Global = loaded.Global
	}
	if loaded.Resource != "" {
		merged.Resource = loaded.Resource
	}
	if loaded.Forum != "" {
		merged.Forum = loaded.Forum
	}
	if loaded.Fallback != "" {
		merged.Fallback = loaded.Fallback
	}
	if loaded.Permanent != "" {
		merged.Permanent = loaded.Permanent
	}
	if loaded.Until != "" {
		merged.Until = loaded.Until
	}

	c.mu.Lock()
	c.messages = merged
	c.path = path
	c.mu.Unlock()
	return nil
}

// Watch reloads the message file whenever it changes. Blocks until the
// watcher fails or stop is closed; run it in its own goroutine.
func (c *Catalog) Watch(stop <-chan struct{}) error {
	c.mu.RLock()
	path := c.path
	c.mu.RUnlock()
	if path == "" {
		return fmt.Errorf("no message file loaded")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors replace files rather than writing in
	// place, which drops a file-level watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch message file dir: %w", err)
	}

	for {
		select {
		case <-stop:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := c.LoadFile(path); err != nil {
				c.logger.WithError(err).Warn("failed to reload ban messages, keeping previous set")
				continue
			}
			c.logger.WithField("path", path).Info("reloaded ban messages")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.WithError(err).Warn("ban message watcher error")
		}
	}
}

// Render produces the user-facing denial message for a ban error.
func (c *Catalog) Render(err *BanError) string {
	c.mu.RLock()
	m := c.messages
	c.mu.RUnlock()

	var msg string
	switch err.Type {
	case BanTypeGlobal:
		msg = m.Global
	case BanTypeResource:
		msg = m.Resource
	case BanTypeForum:
		msg = m.Forum
	default:
		msg = m.Fallback
	}

	if err.ExpiresAt == nil {
		return msg + m.Permanent
	}
	return msg + fmt.Sprintf(m.Until, err.ExpiresAt.UTC().Format(time.RFC1123))
}
