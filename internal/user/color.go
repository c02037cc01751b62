package user

import (
	"math"
	"sync"

	"github.com/lucasb-eyer/go-colorful"
)

// hueStep is the golden-ratio conjugate. Advancing the hue by it each time
// spreads any number of cursors around the color wheel without two
// neighbors ever landing close together.
const hueStep = 0.618033988749895

// ColorGenerator hands out cursor colors at fixed saturation and lightness,
// so every cursor reads at the same visual weight and only the hue
// distinguishes users.
type ColorGenerator struct {
	mu sync.Mutex
	n  int
}

func NewColorGenerator() *ColorGenerator {
	return &ColorGenerator{}
}

// NextColor returns the next color in the sequence as a hex string.
func (cg *ColorGenerator) NextColor() string {
	cg.mu.Lock()
	defer cg.mu.Unlock()

	hue := math.Mod(float64(cg.n)*hueStep, 1)
	cg.n++
	return colorful.Hsl(hue*360, 0.85, 0.55).Hex()
}
