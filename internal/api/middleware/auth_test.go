package middleware

import (
	"context"
	"io"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

// MockSiteRepo is a mock implementation of SiteRepository
type MockSiteRepo struct {
	mock.Mock
}

func (m *MockSiteRepo) GetByCredential(ctx context.Context, slug, syncCodeHash string) (*domain.Site, error) {
	args := m.Called(ctx, slug, syncCodeHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Site), args.Error(1)
}

type seenRecorder struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (r *seenRecorder) Enqueue(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
}

func TestSiteAuth(t *testing.T) {
	const code = "ps_test-sync-code" // #nosec G101 -- test value
	codeHash := domain.HashSyncCode(code)
	siteID := uuid.New()

	tests := []struct {
		name           string
		siteHeader     string
		authHeader     string
		setupMock      func(*MockSiteRepo)
		expectedStatus int
		expectSeen     bool
	}{
		{
			name:       "valid credential",
			siteHeader: "plant-north",
			authHeader: "Bearer " + code,
			setupMock: func(m *MockSiteRepo) {
				m.On("GetByCredential", mock.Anything, "plant-north", codeHash).Return(&domain.Site{
					ID:       siteID,
					Slug:     "plant-north",
					IsActive: true,
				}, nil)
			},
			expectedStatus: 200,
			expectSeen:     true,
		},
		{
			name:           "missing site header",
			authHeader:     "Bearer " + code,
			setupMock:      func(m *MockSiteRepo) {},
			expectedStatus: 401,
		},
		{
			name:           "missing Authorization header",
			siteHeader:     "plant-north",
			setupMock:      func(m *MockSiteRepo) {},
			expectedStatus: 401,
		},
		{
			name:       "wrong sync code",
			siteHeader: "plant-north",
			authHeader: "Bearer wrong",
			setupMock: func(m *MockSiteRepo) {
				m.On("GetByCredential", mock.Anything, "plant-north", domain.HashSyncCode("wrong")).
					Return(nil, domain.ErrSiteNotFound)
			},
			expectedStatus: 401,
		},
		{
			name:       "inactive site",
			siteHeader: "plant-north",
			authHeader: "Bearer " + code,
			setupMock: func(m *MockSiteRepo) {
				m.On("GetByCredential", mock.Anything, "plant-north", codeHash).Return(&domain.Site{
					ID:       siteID,
					Slug:     "plant-north",
					IsActive: false,
				}, nil)
			},
			expectedStatus: 401,
		},
		{
			name:           "invalid Bearer format",
			siteHeader:     "plant-north",
			authHeader:     "Basic abc123",
			setupMock:      func(m *MockSiteRepo) {},
			expectedStatus: 401,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := &MockSiteRepo{}
			tt.setupMock(mockRepo)
			seen := &seenRecorder{}

			app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(discardLogger())})
			app.Use(SiteAuth(mockRepo, seen))
			app.Get("/test", func(c *fiber.Ctx) error {
				site, err := GetSite(c)
				if err != nil {
					return err
				}
				id, err := GetSiteID(c)
				if err != nil {
					return err
				}
				assert.Equal(t, site.ID, id)
				return c.SendString(site.Slug + "/" + GetDeviceID(c))
			})

			req := httptest.NewRequest("GET", "/test", nil)
			if tt.siteHeader != "" {
				req.Header.Set(HeaderSiteID, tt.siteHeader)
			}
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			req.Header.Set(HeaderDeviceID, "tablet-7")

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectSeen {
				body, _ := io.ReadAll(resp.Body)
				assert.Equal(t, "plant-north/tablet-7", string(body))
				assert.Equal(t, []uuid.UUID{siteID}, seen.ids)
			} else {
				assert.Empty(t, seen.ids)
			}

			mockRepo.AssertExpectations(t)
		})
	}
}

func TestSiteAuth_NilRecorder(t *testing.T) {
	mockRepo := &MockSiteRepo{}
	mockRepo.On("GetByCredential", mock.Anything, "plant-north", mock.Anything).
		Return(&domain.Site{ID: uuid.New(), Slug: "plant-north", IsActive: true}, nil)

	app := fiber.New()
	app.Use(SiteAuth(mockRepo, nil))
	app.Get("/test", func(c *fiber.Ctx) error { return c.SendString("OK") })

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(HeaderSiteID, "plant-north")
	req.Header.Set("Authorization", "Bearer code")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		wantToken string
	}{
		{"valid Bearer token", "Bearer test-token", "test-token"},
		{"lowercase bearer", "bearer test-token", "test-token"},
		{"empty header", "", ""},
		{"no Bearer prefix", "test-token", ""},
		{"Basic auth (should reject)", "Basic abc123", ""},
		{"Bearer with extra spaces", "Bearer   test-token  ", "test-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			var gotToken string

			app.Get("/", func(c *fiber.Ctx) error {
				gotToken = extractBearerToken(c)
				return nil
			})

			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			_, err := app.Test(req)
			assert.NoError(t, err)
			assert.Equal(t, tt.wantToken, gotToken)
		})
	}
}

func TestGetSite_NotSet(t *testing.T) {
	app := fiber.New()

	app.Get("/", func(c *fiber.Ctx) error {
		_, err := GetSite(c)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
		_, err = GetSiteID(c)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
		assert.Empty(t, GetDeviceID(c))
		return nil
	})

	_, err := app.Test(httptest.NewRequest("GET", "/", nil))
	assert.NoError(t, err)
}
