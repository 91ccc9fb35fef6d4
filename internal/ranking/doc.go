// Package ranking scores founder/provider pairs and selects each subject's top matches.
//
// Basic Usage:
//
//	// Load weights (typically at startup)
//	weights, err := ranking.LoadCalibration("configs/match.weights.json")
//	if err != nil {
//		log.Warn("using default weights", "error", err)
//	}
//
//	// Score a pair
//	scorer := ranking.NewScorer(weights, similarity.PartialRatio)
//	result := scorer.Score(founder, provider)
//	fmt.Println(result.Score, result.Reason())
//	// 100 Industry aligned; Skill match: 100%; Project type fits; Timeline fit: 100%; Stage match: 100%
//
//	// Keep the five best providers per founder
//	table := ranking.SelectTopK(rows, ranking.DefaultTopK)
//
// Scoring:
//
// A score is the sum of five dimensions evaluated in a fixed order. Industry and
// project type are exact comparisons that award full or partial credit. Skill,
// timeline, and stage use a 0..100 string similarity scaled to the dimension's
// weight. The reason text lists one clause per dimension in the same order, so
// substring filters such as "aligned" behave predictably.
//
// Weights:
//
// Weights are fixed configuration loaded from a JSON file and merged over the
// defaults at startup. See configs/match.weights.json for the default file.
package ranking
