package js

import "sync"

// Clipboard backs DiscordNative.clipboard.
type Clipboard interface {
	Copy(text string) error
	Read() (string, error)
}

// MemClipboard is a Clipboard that keeps the text in memory.
type MemClipboard struct {
	mu   sync.Mutex
	text string
}

// Copy implements Clipboard.
func (c *MemClipboard) Copy(text string) error {
	c.mu.Lock()
	c.text = text
	c.mu.Unlock()
	return nil
}

// Read implements Clipboard.
func (c *MemClipboard) Read() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text, nil
}
