package remote

import (
	"fmt"
	"strings"
	"time"
)

// User is an explorable candidate (also the embedded partner of rooms and lounge matches).
type User struct {
	ID              string   `json:"_id"`
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	BirthYear       int      `json:"birthYear,omitempty"`
	NationalityCode string   `json:"nationalityCode,omitempty"`
	PhotoURLs       []string `json:"photoUrls,omitempty"`
}

// Summary returns a one-line human-readable description.
func (u User) Summary() string {
	parts := []string{u.Name}
	if u.BirthYear > 0 {
		parts = append(parts, fmt.Sprintf("%d", time.Now().Year()-u.BirthYear))
	}
	if u.NationalityCode != "" {
		parts = append(parts, u.NationalityCode)
	}
	return strings.Join(parts, ", ")
}

// ChatRoom is one conversation of the account.
type ChatRoom struct {
	ID           string `json:"_id"`
	Partner      User   `json:"user"`
	LastChatDate string `json:"lastChatDate,omitempty"`
}

// ChatRoomPage is one page of the chat room listing. Next is empty on the last page.
type ChatRoomPage struct {
	Rooms []ChatRoom `json:"rooms"`
	Next  string     `json:"next,omitempty"`
}

// LoungeMatch is a user offered on the lounge dashboard.
type LoungeMatch struct {
	User User `json:"user"`
}

// ID returns the id used for deduplication.
func (m LoungeMatch) ID() string { return m.User.ID }

// Filter is the remote search filter of one account.
type Filter struct {
	GenderType      int    `json:"filterGenderType"`
	BirthYearFrom   int    `json:"filterBirthYearFrom,omitempty"`
	BirthYearTo     int    `json:"filterBirthYearTo,omitempty"`
	Distance        int    `json:"filterDistance,omitempty"`
	LanguageCodes   string `json:"filterLanguageCodes,omitempty"`
	NationalityCode string `json:"filterNationalityCode,omitempty"`
}

// WithNationality returns a copy of f restricted to one nationality code.
func (f Filter) WithNationality(code string) Filter {
	f.NationalityCode = code
	return f
}

// Profile is the account's own profile as returned by Me.
type Profile struct {
	ID              string `json:"_id"`
	Name            string `json:"name"`
	Email           string `json:"email,omitempty"`
	BirthYear       int    `json:"birthYear,omitempty"`
	NationalityCode string `json:"nationalityCode,omitempty"`
	Ruby            int    `json:"ruby,omitempty"`
}
