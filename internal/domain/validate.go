package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	TitleMinLen    = 3
	TitleMaxLen    = 500
	DescMaxLen     = 500
	CommentMaxLen  = 500
	MinDuration    = 1
	MaxDuration    = 365
	MinHoursPerDay = 0.5
	MaxHoursPerDay = 24
)

// ValidateTitle trims and length-checks a goal title, returning the
// trimmed value.
func ValidateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	n := utf8.RuneCountInString(title)
	if n < TitleMinLen {
		return "", fmt.Errorf("title must be at least %d characters", TitleMinLen)
	}
	if n > TitleMaxLen {
		return "", fmt.Errorf("title must be at most %d characters", TitleMaxLen)
	}
	return title, nil
}

func ValidateDescription(desc string) error {
	if utf8.RuneCountInString(desc) > DescMaxLen {
		return fmt.Errorf("description must be at most %d characters", DescMaxLen)
	}
	return nil
}

func ValidateDuration(days int) error {
	if days < MinDuration || days > MaxDuration {
		return fmt.Errorf("duration must be between %d and %d days", MinDuration, MaxDuration)
	}
	return nil
}

func ValidateHoursPerDay(hours float64) error {
	if hours < MinHoursPerDay || hours > MaxHoursPerDay {
		return fmt.Errorf("hours per day must be between %g and %g", MinHoursPerDay, float64(MaxHoursPerDay))
	}
	return nil
}

func ValidateComment(comment string) error {
	if utf8.RuneCountInString(comment) > CommentMaxLen {
		return fmt.Errorf("comment must be at most %d characters", CommentMaxLen)
	}
	return nil
}

// ValidateDay checks a day number against a goal's plan bounds.
func ValidateDay(g Goal, day int) error {
	if day < 1 || day > g.Duration {
		return fmt.Errorf("day %d out of range 1..%d", day, g.Duration)
	}
	return nil
}

// ValidatePlan checks the generated-plan invariant: day numbers unique
// and contiguous 1..duration.
func ValidatePlan(plan []DayPlan, duration int) error {
	if len(plan) != duration {
		return fmt.Errorf("plan has %d entries, want %d", len(plan), duration)
	}
	seen := make(map[int]bool, len(plan))
	for _, p := range plan {
		if p.Day < 1 || p.Day > duration {
			return fmt.Errorf("plan day %d out of range 1..%d", p.Day, duration)
		}
		if seen[p.Day] {
			return fmt.Errorf("plan day %d duplicated", p.Day)
		}
		seen[p.Day] = true
	}
	return nil
}
