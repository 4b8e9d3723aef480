// clock.go — источник времени и таймеров представления.
package listview

import "time"

// Timer — остановимый отложенный вызов.
type Timer interface {
	Stop() bool
}

// Clock — источник времени для debounce. В тестах заменяется ручным.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// RealClock — Clock на основе пакета time.
type RealClock struct{}

// Now возвращает текущее время.
func (RealClock) Now() time.Time { return time.Now() }

// AfterFunc вызывает f в отдельной горутине через d.
func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
