package moods

// Quadrant thresholds. Values equal to a threshold count as low.
const (
	highEnergy       = 0.6
	highValence      = 0.5
	highDanceability = 0.7
)

// moodName names a centroid by its energy/valence quadrant:
//
//   - high energy, high valence: Upbeat
//   - high energy, low valence:  Intense
//   - low energy, high valence:  Chill
//   - low energy, low valence:   Melancholy
//
// Groups with danceability above 0.7 get a "(Danceable)" suffix.
func moodName(c Centroid) string {
	var name string
	switch {
	case c.Energy > highEnergy && c.Valence > highValence:
		name = "Upbeat"
	case c.Energy > highEnergy:
		name = "Intense"
	case c.Valence > highValence:
		name = "Chill"
	default:
		name = "Melancholy"
	}

	if c.Danceability > highDanceability {
		return name + " (Danceable)"
	}
	return name
}

// describe returns a one-line description of the centroid's quadrant.
func describe(c Centroid) string {
	switch {
	case c.Energy > highEnergy && c.Valence > highValence:
		return "High-energy, positive listening"
	case c.Energy > highEnergy:
		return "Driving energy with darker emotional tones"
	case c.Valence > highValence:
		return "Relaxed and uplifting"
	default:
		return "Quiet and introspective"
	}
}
