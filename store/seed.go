package store

import (
	"context"
	"fmt"
	"time"
)

// Seed loads the demo back office: three booking emails, three contacts
// with interaction history, two invoices, and two published posts. Each
// table seeds only when empty, so calling it again is a no-op.
func (s *Store) Seed(ctx context.Context) error {
	seeders := []struct {
		table string
		fn    func(context.Context) error
	}{
		{"emails", s.seedEmails},
		{"contacts", s.seedContacts},
		{"invoices", s.seedInvoices},
		{"posts", s.seedPosts},
	}
	for _, sd := range seeders {
		n, err := s.count(ctx, sd.table)
		if err != nil {
			return err
		}
		if n > 0 {
			continue
		}
		if err := sd.fn(ctx); err != nil {
			return fmt.Errorf("seed %s: %w", sd.table, err)
		}
		s.logger.Debug("seeded demo data", "table", sd.table)
	}
	return nil
}

func (s *Store) count(ctx context.Context, table string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (s *Store) seedEmails(ctx context.Context) error {
	emails := []Email{
		{
			ID:       "email_earl_booking",
			ThreadID: "thread_earl",
			Subject:  "Booking Inquiry - March 22 at The Earl",
			Sender:   "Sarah Chen <sarah@theearlatlanta.com>",
			To:       []string{"artist@example.com"},
			Date:     time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC),
			Body: "Hey!\n\n" +
				"We'd love to have you play The Earl on Saturday, March 22. " +
				"We're thinking a 9pm set time, load-in at 5pm, soundcheck at 6:30pm. " +
				"We can offer $400 guarantee + 15% of door after first 100 tickets. " +
				"Full backline provided (Fender Twin, Ampeg SVT, drum kit). " +
				"Green room with drinks and food for the band.\n\n" +
				"Let me know if you're interested!\n\n" +
				"Sarah Chen\nTalent Buyer, The Earl\n404-555-0123",
			Unread: true,
		},
		{
			ID:       "email_westend_rates",
			ThreadID: "thread_westend",
			Subject:  "Session Rates - West End Sound",
			Sender:   "Miles Davis Jr <miles@westendsound.com>",
			To:       []string{"artist@example.com"},
			Date:     time.Date(2026, 2, 28, 14, 15, 0, 0, time.UTC),
			Body: "Hey,\n\n" +
				"Following up on our conversation about tracking next month. " +
				"My rate is $75/hour, minimum 4-hour block. " +
				"I have openings on March 10, 11, and 14. " +
				"Studio B has the Neve console you liked.\n\n" +
				"Let me know what works.\n\n" +
				"Miles",
			Unread: true,
		},
		{
			ID:       "email_sweetwater_confirm",
			ThreadID: "thread_sweetwater",
			Subject:  "Re: Summer Festival Lineup",
			Sender:   "Dave Promotions <bookings@davepromotes.com>",
			To:       []string{"artist@example.com"},
			Date:     time.Date(2026, 2, 25, 9, 0, 0, 0, time.UTC),
			Body: "Great news! You're confirmed for the Sweetwater Music Festival " +
				"on June 14. Your set is 4:30-5:30pm on the Main Stage. " +
				"Pay is $1,500 flat. Travel stipend of $200. " +
				"We'll need your stage plot and input list by May 1.\n\n" +
				"Full details and contract to follow next week.\n\n" +
				"Dave Ramirez\nDave Promotions\n615-555-0789",
			Unread: false,
		},
	}
	for _, em := range emails {
		if _, err := s.SaveEmail(ctx, em); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) seedContacts(ctx context.Context) error {
	contacts := []Contact{
		{
			ID:           "contact_the_earl",
			Organization: "The Earl",
			Person:       "Sarah Chen",
			Email:        "sarah@theearlatlanta.com",
			Phone:        "404-555-0123",
			Role:         "venue",
			Tags:         []string{"atlanta", "rock", "recurring"},
			Notes:        "Great indie venue in East Atlanta. Full backline provided. Green room + drinks.",
			Rate:         "$400 guarantee + 15% door after 100",
			Terms:        "Net 15",
			LastContact:  "2026-03-01",
		},
		{
			ID:           "contact_west_end",
			Organization: "West End Sound",
			Person:       "Miles Davis Jr",
			Email:        "miles@westendsound.com",
			Role:         "studio",
			Tags:         []string{"recording", "atlanta", "neve-console"},
			Notes:        "Great studio. Studio B has the Neve console. Miles is an incredible engineer.",
			Rate:         "$75/hr (4-hr minimum)",
			Terms:        "Net 15",
			LastContact:  "2026-02-28",
		},
		{
			ID:           "contact_dave_promotions",
			Organization: "Dave Promotions",
			Person:       "Dave Ramirez",
			Email:        "bookings@davepromotes.com",
			Phone:        "615-555-0789",
			Role:         "promoter",
			Tags:         []string{"festivals", "summer", "nashville"},
			Notes:        "Festival promoter. Sweetwater Music Festival. Reliable, pays on time.",
			Rate:         "$1,500 flat + $200 travel",
			Terms:        "Net 30",
			LastContact:  "2026-02-25",
		},
	}
	for _, c := range contacts {
		if _, err := s.AddContact(ctx, c); err != nil {
			return err
		}
	}

	interactions := []Interaction{
		{
			ContactID: "contact_the_earl",
			Kind:      "email_note",
			Content:   "Sarah sent booking inquiry for March 22 show. $400 guarantee + 15% door. Full backline. Need to confirm.",
			Date:      "2026-03-01",
			FollowUp:  "2026-03-05",
		},
		{
			ContactID: "contact_the_earl",
			Kind:      "general",
			Content:   "Played Feb 1 show. Great turnout, 150+ people. Sarah mentioned wanting us back monthly. Invoice paid via Venmo on Feb 10.",
			Date:      "2026-02-01",
		},
		{
			ContactID: "contact_west_end",
			Kind:      "session_note",
			Content:   "Tracked guitars and vocals over two sessions (Feb 10 + 12). Total 7 hours. Miles is great to work with. Invoiced $525.",
			Date:      "2026-02-12",
		},
		{
			ContactID: "contact_west_end",
			Kind:      "email_note",
			Content:   "Miles followed up about scheduling next tracking session in March. Has openings on 10, 11, 14. Studio B with Neve console.",
			Date:      "2026-02-28",
			FollowUp:  "2026-03-07",
		},
		{
			ContactID: "contact_dave_promotions",
			Kind:      "email_note",
			Content:   "Confirmed for Sweetwater Music Festival June 14. Main Stage, 4:30-5:30pm. $1,500 + $200 travel. Need to send stage plot and input list by May 1.",
			Date:      "2026-02-25",
			FollowUp:  "2026-04-15",
		},
		{
			ContactID: "contact_dave_promotions",
			Kind:      "call",
			Content:   "Intro call with Dave. Discussed summer festival possibilities. He promotes 3-4 festivals in the Southeast. Seems well-connected.",
			Date:      "2026-01-10",
		},
	}
	for _, in := range interactions {
		if _, err := s.LogInteraction(ctx, in); err != nil {
			return err
		}
	}

	// LogInteraction moved last_contact forward; restore the real dates.
	for _, c := range contacts {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE contacts SET last_contact = ? WHERE id = ?`,
			c.LastContact, c.ID); err != nil {
			return fmt.Errorf("restore last contact: %w", err)
		}
	}
	return nil
}

func (s *Store) seedInvoices(ctx context.Context) error {
	feb15 := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)
	mar1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	paid := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	due1 := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)

	invoices := []Invoice{
		{
			ID:           "invoice_earl_feb",
			Number:       "INV-2026-001",
			ClientName:   "The Earl",
			ClientEmail:  "sarah@theearlatlanta.com",
			Status:       InvoicePaid,
			IssuedOn:     time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
			DueOn:        &due1,
			Terms:        "Net 15",
			Notes:        "Live performance - Saturday night showcase",
			PaidOn:       &paid,
			PaymentNotes: "Venmo",
			Items: []LineItem{
				{
					Description: "Live performance - Saturday Night Showcase",
					AmountCents: 40000,
					EventDate:   "2026-02-01",
					EventType:   "gig",
					Venue:       "The Earl",
				},
			},
		},
		{
			ID:          "invoice_westend_feb",
			Number:      "INV-2026-002",
			ClientName:  "West End Sound",
			ClientEmail: "miles@westendsound.com",
			Status:      InvoiceSent,
			IssuedOn:    feb15,
			DueOn:       &mar1,
			Terms:       "Net 15",
			Notes:       "Recording session - tracking guitars and vocals",
			Items: []LineItem{
				{
					Description: "Recording session - Guitar tracking (4 hours)",
					AmountCents: 30000,
					EventDate:   "2026-02-10",
					EventType:   "session",
					Venue:       "West End Sound",
				},
				{
					Description: "Recording session - Vocal tracking (3 hours)",
					AmountCents: 22500,
					EventDate:   "2026-02-12",
					EventType:   "session",
					Venue:       "West End Sound",
				},
			},
		},
	}
	for _, inv := range invoices {
		if _, err := s.CreateInvoice(ctx, inv); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) seedPosts(ctx context.Context) error {
	posts := []Post{
		{
			ID:   "post_earl_promo",
			Kind: "feed",
			Caption: "This Saturday at The Earl. Doors at 8, we hit at 9:30. " +
				"Full band, new songs, and some surprises. " +
				"Don't sleep on this one Atlanta.",
			Hashtags: []string{
				"#livemusic", "#atlantamusic", "#theearlatlanta",
				"#liveshow", "#indierock", "#newmusic",
			},
			ImageNote: "Band photo on stage at The Earl with purple lighting",
			Notes:     "For the March 22 show",
			Created:   time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
		},
		{
			ID:   "post_studio_reel",
			Kind: "reel",
			Caption: "3am vibes. When you finally nail that guitar tone you've " +
				"been chasing for two weeks. The process > the product. " +
				"New music coming very soon.",
			Hashtags: []string{
				"#studiolife", "#recording", "#guitarlife",
				"#behindthemusic", "#newmusic", "#theprocess",
			},
			ImageNote: "Studio reel showing guitar recording at West End Sound",
			Notes:     "West End Sound session reel",
			Created:   time.Date(2026, 2, 13, 9, 30, 0, 0, time.UTC),
		},
	}
	for _, p := range posts {
		if _, err := s.SavePost(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// SeedVoiceSamples returns the starter set of writing samples used to
// bootstrap the voice store on first run. Categories mirror the kinds of
// posts a working musician writes.
func SeedVoiceSamples() []VoiceSample {
	return []VoiceSample{
		{
			Text: "ATLANTA. This Saturday. The Earl. Doors at 8, we hit at 9:30. " +
				"Bringing the full band and some new joints we've been cooking up " +
				"in the studio. Come early, it's gonna be packed. Link in bio for tix.",
			Category: "gig_promo",
		},
		{
			Text: "3am in the studio and this track just clicked. Been chasing this " +
				"sound for weeks and tonight it all came together. Can't wait for " +
				"y'all to hear what we've been working on. The process is everything.",
			Category: "behind_the_scenes",
		},
		{
			Text: "Last night was unreal. Sold out room, everyone singing along, " +
				"pure energy from start to finish. This is why we do it. Thank you " +
				"Atlanta for always showing up. Y'all are family.",
			Category: "fan_engagement",
		},
		{
			Text: "It's here. New single drops this Friday at midnight. This one's " +
				"personal. Wrote it after a late night drive through the city. " +
				"Pre-save link in bio. Let me know what you think when it hits.",
			Category: "new_release",
		},
		{
			Text: "Huge shoutout to @miles_westendsound for the incredible mix on this " +
				"one. When you work with people who get your vision, magic happens. " +
				"Go check out his work. More collabs coming soon.",
			Category: "collaboration",
		},
	}
}

// VoiceSample is one example of how the artist writes, used to ground
// generated captions in their actual voice.
type VoiceSample struct {
	Text     string
	Category string
}
