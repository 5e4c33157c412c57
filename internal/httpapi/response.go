package httpapi

import "github.com/freeeve/blunderscan/internal/game"

// GameSummary is one entry of the game list.
type GameSummary struct {
	ID       string `json:"id"`
	ECO      string `json:"eco,omitempty"`
	Opening  string `json:"opening,omitempty"`
	Blunders int    `json:"blunders"`
}

// GameResponse is a game with its blunders.
type GameResponse struct {
	ID       string            `json:"id"`
	ECO      string            `json:"eco,omitempty"`
	Opening  string            `json:"opening,omitempty"`
	Blunders []BlunderResponse `json:"blunders"`
}

type BlunderResponse struct {
	Position   string `json:"position"` // FEN before the move
	Move       string `json:"move"`     // SAN notation
	EvalBefore int    `json:"eval_before"`
	EvalAfter  int    `json:"eval_after"`
	Loss       int    `json:"loss"`
}

type RecurringResponse struct {
	BlunderResponse
	Count   int      `json:"count"`
	GameIDs []string `json:"game_ids"`
}

func toBlunderResponse(b game.Blunder) BlunderResponse {
	return BlunderResponse{
		Position:   b.Position,
		Move:       b.Move,
		EvalBefore: int(b.EvalBefore),
		EvalAfter:  int(b.EvalAfter),
		Loss:       b.Loss(),
	}
}

// ToGameSummary converts a stored game to its list entry.
func ToGameSummary(g game.Game) GameSummary {
	s := GameSummary{ID: g.ID, Blunders: len(g.Blunders)}
	if g.Opening != nil {
		s.ECO, s.Opening = g.Opening.ECO, g.Opening.Name
	}
	return s
}

// ToGameResponse converts a stored game to the JSON-friendly response.
func ToGameResponse(g game.Game) *GameResponse {
	resp := &GameResponse{
		ID:       g.ID,
		Blunders: make([]BlunderResponse, 0, len(g.Blunders)),
	}
	if g.Opening != nil {
		resp.ECO, resp.Opening = g.Opening.ECO, g.Opening.Name
	}
	for _, b := range g.Blunders {
		resp.Blunders = append(resp.Blunders, toBlunderResponse(b))
	}
	return resp
}

func toRecurringResponse(rb game.RecurringBlunder) RecurringResponse {
	return RecurringResponse{
		BlunderResponse: toBlunderResponse(rb.Blunder),
		Count:           rb.Count,
		GameIDs:         rb.GameIDs,
	}
}
