// Package badges maps progress through the tower onto achievement tiers.
//
// A player holds at most one badge at a time: the highest tier whose
// unlock level is at or below the highest floor they have breached.
package badges

import (
	"fmt"
	"net/url"
)

type Badge struct {
	ID          string
	Name        string
	Icon        string
	UnlockLevel int
	Color       string
}

const (
	Bronze  = "bronze"
	Silver  = "silver"
	Gold    = "gold"
	Diamond = "diamond"
)

// tiers is ordered by strictly increasing UnlockLevel.
var tiers = []Badge{
	{ID: Bronze, Name: "Script Kiddie", Icon: "🥉", UnlockLevel: 3, Color: "#CD7F32"},
	{ID: Silver, Name: "Social Engineer", Icon: "🥈", UnlockLevel: 5, Color: "#C0C0C0"},
	{ID: Gold, Name: "Prompt Hacker", Icon: "🥇", UnlockLevel: 7, Color: "#FFD700"},
	{ID: Diamond, Name: "AI Breaker", Icon: "💎", UnlockLevel: 10, Color: "#B9F2FF"},
}

// All returns the badge table in tier order.
func All() []Badge {
	return append([]Badge(nil), tiers...)
}

func ByID(id string) (Badge, bool) {
	for _, b := range tiers {
		if b.ID == id {
			return b, true
		}
	}
	return Badge{}, false
}

// ForLevel returns the highest tier unlocked at level, or false below the first threshold.
func ForLevel(level int) (Badge, bool) {
	for i := len(tiers) - 1; i >= 0; i-- {
		if level >= tiers[i].UnlockLevel {
			return tiers[i], true
		}
	}
	return Badge{}, false
}

// CheckNewUnlock reports the badge earned by moving from previousHighest to newHighest,
// if that move crosses into a strictly higher tier.
func CheckNewUnlock(previousHighest, newHighest int) (Badge, bool) {
	next, ok := ForLevel(newHighest)
	if !ok {
		return Badge{}, false
	}
	prev, had := ForLevel(previousHighest)
	if had && next.UnlockLevel <= prev.UnlockLevel {
		return Badge{}, false
	}
	return next, true
}

// NextMilestone returns the smallest tier whose threshold is strictly above highest.
func NextMilestone(highest int) (Badge, bool) {
	for _, b := range tiers {
		if b.UnlockLevel > highest {
			return b, true
		}
	}
	return Badge{}, false
}

// IDForLevel is the persisted form of ForLevel: the badge id, or nil.
func IDForLevel(level int) *string {
	b, ok := ForLevel(level)
	if !ok {
		return nil
	}
	id := b.ID
	return &id
}

const siteURL = "https://breachlab.xsourcesec.com"

func ShareText(b *Badge, level int) string {
	name := "a level"
	if b != nil {
		name = "the " + b.Name + " badge"
	}
	return fmt.Sprintf("🔓 I just earned %s on BreachLab!\n\nCan you hack an AI? I made it to Level %d.\n\nTry it: breachlab.xsourcesec.com", name, level)
}

func TwitterShareURL(b *Badge, level int) string {
	q := url.Values{}
	q.Set("text", ShareText(b, level))
	q.Set("hashtags", "AIHacking,PromptInjection,CyberSecurity")
	return "https://twitter.com/intent/tweet?" + q.Encode()
}

func LinkedInShareURL() string {
	return "https://www.linkedin.com/sharing/share-offsite/?url=" + url.QueryEscape(siteURL)
}
