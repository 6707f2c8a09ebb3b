package seed

import (
	"fmt"
	"strings"
	"time"

	"db-sync/internal/schema"

	"github.com/brianvoe/gofakeit/v6"
)

// Generator produces plausible values for a column from its name and type.
type Generator struct {
	faker *gofakeit.Faker
	now   time.Time
}

// NewGenerator returns a deterministic generator for a given seed. Seed 0
// picks a random one.
func NewGenerator(seed int64) *Generator {
	return &Generator{faker: gofakeit.New(seed), now: time.Now()}
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) > limit {
		return string(runes[:limit])
	}
	return s
}

// Value returns a value for col, or nil for types it cannot fake.
func (g *Generator) Value(col *schema.Column) any {
	name := strings.ToLower(col.Name)

	switch col.Category {
	case schema.CategoryString:
		return truncate(g.text(name, col.Length), col.Length)
	case schema.CategoryInteger:
		if strings.HasPrefix(name, "is_") || strings.Contains(name, "active") || strings.Contains(name, "enabled") {
			return int64(g.faker.Number(0, 1))
		}
		return int64(g.faker.Number(1, intLimit(col)))
	case schema.CategoryDecimal:
		return g.faker.Price(0.99, 999.99)
	case schema.CategoryBoolean:
		return g.faker.Bool()
	case schema.CategoryDateTime:
		return g.recent().Format("2006-01-02 15:04:05")
	case schema.CategoryDate:
		return g.recent().Format("2006-01-02")
	case schema.CategoryTime:
		return g.recent().Format("15:04:05")
	case schema.CategoryBinary:
		return []byte(g.faker.LetterN(16))
	default:
		if col.IsNullable {
			return nil
		}
		return truncate(g.faker.Word(), col.Length)
	}
}

func (g *Generator) recent() time.Time {
	return g.faker.DateRange(g.now.AddDate(-1, 0, 0), g.now)
}

func (g *Generator) text(name string, length int) string {
	isID := strings.HasSuffix(name, "id")
	switch {
	case isID:
		return g.faker.UUID()
	case strings.Contains(name, "email"):
		return g.faker.Email()
	case strings.Contains(name, "phone"):
		return g.faker.Phone()
	case strings.Contains(name, "first"):
		return g.faker.FirstName()
	case strings.Contains(name, "last"):
		return g.faker.LastName()
	case strings.Contains(name, "name"):
		return g.faker.Name()
	case strings.Contains(name, "address"), strings.Contains(name, "street"):
		return g.faker.Street()
	case strings.Contains(name, "city"):
		return g.faker.City()
	case strings.Contains(name, "country"):
		return g.faker.Country()
	case strings.Contains(name, "zip"), strings.Contains(name, "postal"):
		return g.faker.Zip()
	case strings.Contains(name, "status"):
		return g.faker.RandomString([]string{"open", "paid", "shipped", "cancelled"})
	case strings.Contains(name, "title"), strings.Contains(name, "subject"):
		return g.faker.Sentence(3)
	case strings.Contains(name, "year"):
		return fmt.Sprintf("%d", 2000+g.faker.Number(0, 25))
	}
	if length > 0 && length < 20 {
		return g.faker.Word()
	}
	return g.faker.Sentence(8)
}

// intLimit keeps generated integers inside the column type.
func intLimit(col *schema.Column) int {
	limit := 50000
	switch strings.ToLower(col.DataType) {
	case "tinyint":
		limit = 127
	case "smallint":
		limit = 30000
	}
	if col.Length > 0 && col.Length < 5 {
		p := 1
		for i := 0; i < col.Length; i++ {
			p *= 10
		}
		limit = min(limit, p-1)
	}
	return max(limit, 1)
}
