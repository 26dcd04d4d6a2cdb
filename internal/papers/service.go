package papers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"conference/internal/cloudinary"
	"conference/internal/conference"
	"conference/internal/docstore"
	"conference/internal/notify"
	"conference/internal/registration"
)

var (
	ErrInvalid          = errors.New("invalid paper submission")
	ErrSubmissionClosed = errors.New("paper submission is not open for this conference")
	ErrUploadDisabled   = errors.New("file uploads are not configured")
	ErrFileRejected     = errors.New("unsupported manuscript file")
)

// MaxFileBytes caps manuscript uploads.
const MaxFileBytes = 20 << 20

var allowedExt = map[string]bool{".pdf": true, ".doc": true, ".docx": true}

// Conferences is the subset of the conference service used here.
type Conferences interface {
	Get(ctx context.Context, id string) (conference.Conference, error)
	List(ctx context.Context, includeDrafts bool) ([]conference.Conference, error)
}

// Registrations unlocks the payment step for accepted authors.
type Registrations interface {
	UnlockForPaper(ctx context.Context, a registration.Applicant, conferenceID, paperID string) ([]registration.Registration, bool, error)
}

// Uploader stores manuscripts.
type Uploader interface {
	Upload(ctx context.Context, r io.Reader, filename, publicID string) (cloudinary.UploadResult, error)
}

// Notifier publishes decision letters.
type Notifier interface {
	Notify(ctx context.Context, kind string, n notify.Notice) error
}

// Service implements submission and review.
type Service struct {
	repo          *Repository
	conferences   Conferences
	registrations Registrations
	uploader      Uploader
	notifier      Notifier
	log           zerolog.Logger
	now           func() time.Time
}

// NewService wires the service. uploader may be nil when uploads are disabled.
func NewService(repo *Repository, conferences Conferences, registrations Registrations, uploader Uploader, notifier Notifier, log zerolog.Logger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:          repo,
		conferences:   conferences,
		registrations: registrations,
		uploader:      uploader,
		notifier:      notifier,
		log:           log.With().Str("component", "papers").Logger(),
		now:           now,
	}
}

// Submitter identifies the signed-in author.
type Submitter struct {
	UserID string
	Name   string
	Email  string
}

// Submission is the metadata of a new paper.
type Submission struct {
	ConferenceID string
	Title        string
	Abstract     string
	Keywords     []string
	Authors      []Author
}

// Upload is an optional manuscript attached to a submission.
type Upload struct {
	Filename string
	Size     int64
	Content  io.Reader
}

// Submit stores a new paper in pending state, uploading the manuscript first
// when one is attached.
func (s *Service) Submit(ctx context.Context, who Submitter, sub Submission, file *Upload) (Paper, error) {
	if who.UserID == "" {
		return Paper{}, fmt.Errorf("%w: user required", ErrInvalid)
	}
	sub.Title = strings.TrimSpace(sub.Title)
	if sub.Title == "" || sub.ConferenceID == "" {
		return Paper{}, fmt.Errorf("%w: conference and title are required", ErrInvalid)
	}
	conf, err := s.conferences.Get(ctx, sub.ConferenceID)
	if err != nil {
		return Paper{}, err
	}
	if !conf.AcceptsPapers(s.now()) {
		return Paper{}, ErrSubmissionClosed
	}

	now := s.now().UTC()
	p := Paper{
		ID:             uuid.NewString(),
		ConferenceID:   sub.ConferenceID,
		UserID:         who.UserID,
		SubmitterName:  who.Name,
		SubmitterEmail: who.Email,
		Title:          sub.Title,
		Abstract:       strings.TrimSpace(sub.Abstract),
		Keywords:       cleanKeywords(sub.Keywords),
		Authors:        sub.Authors,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if len(p.Authors) == 0 {
		p.Authors = []Author{{Name: who.Name, Email: who.Email, Corresponding: true}}
	}

	if file != nil {
		f, err := s.store(ctx, p.ID, file)
		if err != nil {
			return Paper{}, err
		}
		p.File = f
	}
	if err := s.repo.Put(ctx, p); err != nil {
		return Paper{}, fmt.Errorf("save paper: %w", err)
	}
	s.log.Info().Str("paper_id", p.ID).Str("conference_id", p.ConferenceID).Msg("paper submitted")
	p.normalize()
	return p, nil
}

func (s *Service) store(ctx context.Context, paperID string, file *Upload) (*File, error) {
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedExt[ext] {
		return nil, fmt.Errorf("%w: %s", ErrFileRejected, ext)
	}
	if file.Size > MaxFileBytes {
		return nil, fmt.Errorf("%w: larger than %d MB", ErrFileRejected, MaxFileBytes>>20)
	}
	if s.uploader == nil {
		return nil, ErrUploadDisabled
	}
	res, err := s.uploader.Upload(ctx, io.LimitReader(file.Content, MaxFileBytes+1), file.Filename, paperID)
	if err != nil {
		if errors.Is(err, cloudinary.ErrNotConfigured) {
			return nil, ErrUploadDisabled
		}
		return nil, fmt.Errorf("upload manuscript: %w", err)
	}
	url := res.SecureURL
	if url == "" {
		url = res.URL
	}
	return &File{Name: filepath.Base(file.Filename), URL: url, PublicID: res.PublicID, Bytes: res.Bytes}, nil
}

// Get returns one paper.
func (s *Service) Get(ctx context.Context, conferenceID, id string) (Paper, error) {
	return s.repo.Get(ctx, conferenceID, id)
}

// List returns a conference's papers, optionally filtered by status.
func (s *Service) List(ctx context.Context, conferenceID string, status Status) ([]Paper, error) {
	var f docstore.Filter
	if status != "" {
		f = docstore.Filter{"status": string(status)}
	}
	return s.repo.Find(ctx, conferenceID, f)
}

// ListForUser returns a user's papers across all conferences.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Paper, error) {
	confs, err := s.conferences.List(ctx, true)
	if err != nil {
		return nil, err
	}
	out := []Paper{}
	for _, c := range confs {
		ps, err := s.repo.Find(ctx, c.ID, docstore.Filter{"user_id": userID})
		if err != nil {
			return nil, err
		}
		out = append(out, ps...)
	}
	return out, nil
}

// Decision is a reviewer's verdict.
type Decision struct {
	Status  Status
	Comment string
}

// Review records a decision. Accepting a paper unlocks (or creates) the
// author's registration. Repeating the current status changes nothing.
func (s *Service) Review(ctx context.Context, conferenceID, id string, d Decision) (Paper, error) {
	if _, ok := ParseStatus(string(d.Status)); !ok {
		return Paper{}, fmt.Errorf("%w: unknown status %q", ErrInvalid, d.Status)
	}
	p, err := s.repo.Get(ctx, conferenceID, id)
	if err != nil {
		return Paper{}, err
	}
	if p.Status == d.Status {
		return p, nil
	}

	now := s.now().UTC()
	p.Status = d.Status
	p.ReviewComment = strings.TrimSpace(d.Comment)
	p.ReviewedAt = &now
	p.UpdatedAt = now

	if d.Status == StatusAccepted {
		regs, created, err := s.registrations.UnlockForPaper(ctx, registration.Applicant{
			UserID:      p.UserID,
			Name:        p.SubmitterName,
			Email:       p.SubmitterEmail,
			Affiliation: p.affiliation(),
		}, p.ConferenceID, p.ID)
		if err != nil {
			return Paper{}, fmt.Errorf("unlock registration: %w", err)
		}
		if len(regs) > 0 && p.RegistrationID == "" {
			p.RegistrationID = regs[0].ID
		}
		s.log.Info().Str("paper_id", p.ID).Int("unlocked", len(regs)).Bool("created", created).Msg("paper accepted")
	}
	if err := s.repo.Put(ctx, p); err != nil {
		return Paper{}, fmt.Errorf("save review: %w", err)
	}

	if d.Status != StatusPending {
		s.notifyDecision(ctx, p)
	}
	return p, nil
}

func (s *Service) notifyDecision(ctx context.Context, p Paper) {
	if s.notifier == nil {
		return
	}
	confName := ""
	if c, err := s.conferences.Get(ctx, p.ConferenceID); err == nil {
		confName = c.Name
	}
	err := s.notifier.Notify(ctx, notify.KindPaperDecision, notify.Notice{
		Email:          p.SubmitterEmail,
		Name:           p.SubmitterName,
		ConferenceID:   p.ConferenceID,
		ConferenceName: confName,
		RegistrationID: p.RegistrationID,
		PaperID:        p.ID,
		PaperTitle:     p.Title,
		Status:         string(p.Status),
		Comment:        p.ReviewComment,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("paper_id", p.ID).Msg("publish decision")
	}
}

func cleanKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, k := range in {
		for _, part := range strings.Split(k, ",") {
			part = strings.TrimSpace(part)
			if part == "" || seen[strings.ToLower(part)] {
				continue
			}
			seen[strings.ToLower(part)] = true
			out = append(out, part)
		}
	}
	return out
}
