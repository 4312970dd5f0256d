package fake

import (
	"math/rand"

	"github.com/goccy/go-json"
)

const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Generator produces random JSON-like trees. The same seed gives the same documents.
// Keys are drawn from a small pool so documents share fields often enough to exercise
// record merging.
type Generator struct {
	r        *rand.Rand
	keys     []string
	MaxDepth int
}

func New(seed int64) *Generator {
	g := &Generator{r: rand.New(rand.NewSource(seed)), MaxDepth: 4}
	g.keys = make([]string, 8)
	for i := range g.keys {
		g.keys[i] = g.String(1 + g.r.Intn(6))
	}
	return g
}

// JSON returns a random object.
func (g *Generator) JSON() map[string]any {
	return g.object(0)
}

// Document returns a random object encoded as JSON.
func (g *Generator) Document() []byte {
	bs, err := json.Marshal(g.JSON())
	if err != nil {
		panic(err)
	}
	return bs
}

func (g *Generator) Documents(n int) [][]byte {
	res := make([][]byte, n)
	for i := range res {
		res[i] = g.Document()
	}
	return res
}

func (g *Generator) object(depth int) map[string]any {
	nkeys := g.r.Intn(5)
	obj := make(map[string]any, nkeys)
	for i := 0; i < nkeys; i++ {
		obj[g.keys[g.r.Intn(len(g.keys))]] = g.value(depth + 1)
	}
	return obj
}

func (g *Generator) array(depth int) []any {
	n := g.r.Intn(4)
	arr := make([]any, n)
	for i := range arr {
		arr[i] = g.value(depth + 1)
	}
	return arr
}

func (g *Generator) value(depth int) any {
	leaf := depth+1 >= g.MaxDepth
	switch n := g.r.Intn(100); {
	case n < 10:
		return nil
	case n < 20:
		return g.r.Intn(2) == 0
	case n < 40:
		return g.r.Intn(1000) - 500
	case n < 50:
		// always carries a fraction so it encodes as a float
		return float64(g.r.Intn(1000)) + 0.25
	case n < 70 || leaf:
		return g.String(1 + g.r.Intn(32))
	case n < 85:
		return g.array(depth)
	default:
		return g.object(depth)
	}
}

func (g *Generator) String(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[g.r.Intn(len(letters))]
	}
	return string(b)
}
