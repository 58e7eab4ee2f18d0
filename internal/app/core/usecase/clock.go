package usecase

import "time"

// Clock 提供交易時間戳
type Clock interface {
	Now() time.Time
}

// SystemClock 使用系統時間 (UTC)
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
