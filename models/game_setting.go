package models

import (
	"errors"
	"fmt"
	"time"
)

type GameStatus string

const (
	GameStatusStart GameStatus = "START"
	GameStatusStop  GameStatus = "STOP"
)

// GameStatusSettingKey is the game_settings row holding the current GameStatus.
const GameStatusSettingKey = "status"

var ErrInvalidGameStatus = errors.New("invalid game status")

func ParseGameStatus(raw string) (GameStatus, error) {
	switch GameStatus(raw) {
	case GameStatusStart, GameStatusStop:
		return GameStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q (must be START or STOP)", ErrInvalidGameStatus, raw)
}

// GameSetting is a single key/value configuration row.
type GameSetting struct {
	Key       string    `json:"key" gorm:"primaryKey"`
	Value     string    `json:"value" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
