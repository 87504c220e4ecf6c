// Package planner drafts trip itineraries and answers travel questions with a
// generative model.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"holidaysync/internal/util"

	"go.uber.org/zap"
)

var (
	ErrInvalidRequest = errors.New("invalid planner request")
	ErrBadResponse    = errors.New("model returned an unusable response")
)

const (
	maxDays          = 14
	maxMessageLength = 2000
	maxHistory       = 20

	RoleUser  = "user"
	RoleModel = "model"
)

const guideInstruction = `You are a warm and knowledgeable local guide for HolidaySync travellers.
Keep answers concise and focused on travel, activities and places to visit.
Do not invent exact prices; give realistic estimates and say they are estimates.`

const plannerInstruction = "You are an expert travel planner. Output valid JSON only."

var jsonObject = regexp.MustCompile(`\{[\s\S]*\}`)

// ItineraryRequest describes the trip to plan
type ItineraryRequest struct {
	Duration  int      `json:"duration"`
	Travelers string   `json:"travelers"`
	Interests []string `json:"interests"`
	Budget    string   `json:"budget"`
}

// Itinerary is a day by day plan
type Itinerary struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Days    []Day  `json:"days"`
}

type Day struct {
	Day       int    `json:"day"`
	Title     string `json:"title"`
	Morning   string `json:"morning"`
	Afternoon string `json:"afternoon"`
	Evening   string `json:"evening"`
}

// Message is one turn of a chat conversation
type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Planner wraps a Model with prompt building and output parsing
type Planner struct {
	model  Model
	logger *zap.Logger
}

// New creates a new planner
func New(model Model) *Planner {
	return &Planner{model: model, logger: util.GetLogger()}
}

func (r *ItineraryRequest) validate() error {
	if r.Duration < 1 || r.Duration > maxDays {
		return fmt.Errorf("%w: duration must be between 1 and %d days", ErrInvalidRequest, maxDays)
	}
	if strings.TrimSpace(r.Travelers) == "" {
		return fmt.Errorf("%w: travelers is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Budget) == "" {
		return fmt.Errorf("%w: budget is required", ErrInvalidRequest)
	}
	return nil
}

func buildItineraryPrompt(r *ItineraryRequest) string {
	interests := "general sightseeing"
	if len(r.Interests) > 0 {
		interests = strings.Join(r.Interests, ", ")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Create a %d-day detailed travel itinerary for a %s.\n", r.Duration, r.Travelers)
	fmt.Fprintf(&sb, "Interests: %s.\n", interests)
	fmt.Fprintf(&sb, "Budget style: %s.\n\n", r.Budget)
	sb.WriteString("Focus on a logical geographic flow. Provide a specific title for the trip and a short summary.\n\n")
	sb.WriteString(`The JSON should have the following structure:
{
  "title": "Trip Title",
  "summary": "Short summary",
  "days": [
    {"day": 1, "title": "Day Title", "morning": "...", "afternoon": "...", "evening": "..."}
  ]
}`)
	return sb.String()
}

// extractJSON returns the outermost JSON object in text, which models often
// wrap in markdown fences or prose.
func extractJSON(text string) string {
	if m := jsonObject.FindString(text); m != "" {
		return m
	}
	return strings.TrimSpace(text)
}

// GenerateItinerary asks the model for a plan and parses its JSON answer
func (p *Planner) GenerateItinerary(ctx context.Context, req *ItineraryRequest) (*Itinerary, error) {
	ctx, span := util.StartSpan(ctx, "Planner.GenerateItinerary")
	defer span.End()

	if err := req.validate(); err != nil {
		return nil, err
	}

	text, err := p.model.Generate(ctx, plannerInstruction, buildItineraryPrompt(req))
	if err != nil {
		p.logger.Error("Itinerary generation failed", zap.Error(err))
		return nil, util.RecordError(span, err)
	}

	var it Itinerary
	if err := json.Unmarshal([]byte(extractJSON(text)), &it); err != nil {
		p.logger.Warn("Itinerary response is not valid JSON", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if it.Title == "" || len(it.Days) == 0 {
		return nil, fmt.Errorf("%w: itinerary has no title or days", ErrBadResponse)
	}
	return &it, nil
}

// Chat answers message in the context of the previous turns
func (p *Planner) Chat(ctx context.Context, message string, history []Message) (string, error) {
	ctx, span := util.StartSpan(ctx, "Planner.Chat")
	defer span.End()

	message = strings.TrimSpace(message)
	if message == "" || utf8.RuneCountInString(message) > maxMessageLength {
		return "", fmt.Errorf("%w: message must be between 1 and %d characters", ErrInvalidRequest, maxMessageLength)
	}
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	turns := make([]Message, 0, len(history))
	for _, h := range history {
		role := RoleUser
		if h.Role == RoleModel {
			role = RoleModel
		}
		turns = append(turns, Message{Role: role, Text: h.Text})
	}

	answer, err := p.model.Chat(ctx, guideInstruction, turns, message)
	if err != nil {
		p.logger.Error("Planner chat failed", zap.Error(err))
		return "", util.RecordError(span, err)
	}
	if strings.TrimSpace(answer) == "" {
		return "", fmt.Errorf("%w: empty answer", ErrBadResponse)
	}
	return answer, nil
}
