package pipeline

import (
	"fmt"
	"sync"
	"time"
)

// Namer выдает имена аудио файлов вида tts-<unix ms>.mp3.
// Внутри процесса имена строго возрастают, даже если часы не сдвинулись.
type Namer struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewNamer создает генератор имен на системных часах
func NewNamer() *Namer {
	return &Namer{now: time.Now}
}

// Next возвращает следующее уникальное имя
func (n *Namer) Next() string {
	n.mu.Lock()
	defer n.mu.Unlock()

	ms := n.now().UnixMilli()
	if ms <= n.last {
		ms = n.last + 1
	}
	n.last = ms

	return fmt.Sprintf("tts-%d.mp3", ms)
}
