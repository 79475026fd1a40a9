package testdata

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/jordanlanch/refertrack/pkg/account"
	"github.com/jordanlanch/refertrack/pkg/database"
	"github.com/jordanlanch/refertrack/pkg/logger"
)

// OpenDB returns a migrated in-memory SQLite database private to t.
func OpenDB(t testing.TB) *database.Client {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", url.PathEscape(name))

	client, err := database.Open(context.Background(), database.Options{
		Driver: database.DriverSQLite,
		URL:    dsn,
		Pool:   database.DefaultPoolConfig(),
		Logger: logger.Discard(),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// Generator produces realistic signup payloads.
type Generator struct {
	faker *gofakeit.Faker
}

// NewGenerator creates a generator. A zero seed picks a random one.
func NewGenerator(seed int64) *Generator {
	return &Generator{faker: gofakeit.New(seed)}
}

// IndianMobile returns a valid 10-digit Indian mobile number.
func (g *Generator) IndianMobile() string {
	return fmt.Sprintf("9%09d", g.faker.Number(0, 999999999))
}

// NewAccount returns a complete signup payload for role.
func (g *Generator) NewAccount(role account.Role, referralCode string) account.NewAccount {
	n := account.NewAccount{
		Role:         role,
		Name:         g.faker.Name(),
		Email:        strings.ToLower(g.faker.Username()) + fmt.Sprintf("%d@example.com", g.faker.Number(1000, 9999)),
		PhoneNumber:  g.IndianMobile(),
		Password:     g.faker.Password(true, true, true, false, false, 12),
		ReferralCode: referralCode,
	}

	switch role {
	case account.RoleSchool:
		n.Email = ""
		n.Profile = account.Profile{
			SchoolName: g.faker.LastName() + " Public School",
			Standard:   fmt.Sprintf("%d", g.faker.Number(6, 12)),
			Address:    g.faker.Address().Address,
		}
	case account.RoleCollege:
		n.Profile = account.Profile{
			CollegeName:      g.faker.Company() + " College",
			YearOfGraduation: g.faker.Number(2025, 2030),
		}
	}
	return n
}
