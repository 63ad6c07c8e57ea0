package exam

import "math"

// Score counts answers matching each question's correct index and returns the
// rounded percentage. An empty set scores 0.
func Score(questions []Question, answers []int) (correct, score int) {
	for i, q := range questions {
		if i < len(answers) && answers[i] == q.CorrectIndex {
			correct++
		}
	}
	if len(questions) == 0 {
		return 0, 0
	}
	score = int(math.Round(float64(correct) / float64(len(questions)) * 100))
	return correct, score
}
