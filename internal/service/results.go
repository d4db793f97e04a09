package service

import (
	"sort"
	"time"

	"ballot-engine/internal/domain"
)

// tally counts ballots per position and ranks candidates
func tally(e *domain.Election, ballots []*domain.Ballot, now time.Time) *domain.Results {
	results := &domain.Results{
		ElectionID:       e.ID,
		CountingMode:     e.CountingMode,
		TotalVotes:       len(ballots),
		RegisteredVoters: e.RegisteredVoters,
		Declared:         e.Status == domain.StatusDeclared,
		Positions:        make([]domain.PositionResult, 0, len(e.Positions)),
		ComputedAt:       now,
	}
	if e.RegisteredVoters > 0 {
		results.Turnout = float64(len(ballots)) / float64(e.RegisteredVoters) * 100
	}

	for _, p := range e.Positions {
		votes := make(map[string]int, len(p.Candidates))
		positionBallots := 0
		for _, b := range ballots {
			selected := b.Choices[p.ID]
			if len(selected) == 0 {
				continue
			}
			positionBallots++
			for _, candidateID := range selected {
				votes[candidateID]++
			}
		}

		ranked := buildRankings(p.Candidates, votes, positionBallots)
		seats := seatsFor(e.CountingMode, p)
		winners := make([]domain.CandidateResult, 0, seats)
		for i := range ranked {
			if ranked[i].Votes > 0 && ranked[i].Rank <= seats {
				ranked[i].IsWinner = true
				winners = append(winners, ranked[i])
			}
		}

		results.Positions = append(results.Positions, domain.PositionResult{
			PositionID: p.ID,
			Name:       p.Name,
			Ballots:    positionBallots,
			Candidates: ranked,
			Winners:    winners,
		})
	}
	return results
}

// buildRankings orders candidates by votes. Tied candidates share a rank and
// the next rank skips accordingly (1, 1, 3).
func buildRankings(candidates []domain.Candidate, votes map[string]int, ballots int) []domain.CandidateResult {
	ranked := make([]domain.CandidateResult, len(candidates))
	for i, c := range candidates {
		ranked[i] = domain.CandidateResult{Candidate: c, Votes: votes[c.ID]}
		if ballots > 0 {
			ranked[i].Percentage = float64(ranked[i].Votes) / float64(ballots) * 100
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Votes > ranked[j].Votes
	})

	for i := range ranked {
		if i > 0 && ranked[i].Votes == ranked[i-1].Votes {
			ranked[i].Rank = ranked[i-1].Rank
		} else {
			ranked[i].Rank = i + 1
		}
	}
	return ranked
}

// seatsFor is the number of winners a position elects
func seatsFor(mode domain.CountingMode, p domain.Position) int {
	if mode == domain.CountingMultipleWinner && !p.SingleChoice && p.MaxSelections > 1 {
		return p.MaxSelections
	}
	return 1
}
