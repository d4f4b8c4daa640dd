package catalog

import (
	_ "embed"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

//go:embed seed.yaml
var seedData []byte

var (
	ErrBookNotFound       = errors.New("book not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
)

// Repository provides catalog, account and purchase operations.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

// Open opens the sqlite database at path and migrates it. Use ":memory:" for
// a throwaway database.
func Open(path string) (*Repository, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, errors.Wrap(err, "failed to create database directory")
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get underlying sql.DB")
	}
	// SQLite has a single writer, and ":memory:" is per connection.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Book{}, &User{}, &Purchase{}); err != nil {
		return nil, errors.Wrap(err, "failed to run migrations")
	}
	return &Repository{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return errors.WithStack(err)
	}
	return sqlDB.Close()
}

// Seed inserts the bundled catalog. Books already present are left alone so
// counters survive.
func (r *Repository) Seed() error {
	var books []Book
	if err := yaml.Unmarshal(seedData, &books); err != nil {
		return errors.Wrap(err, "failed to parse bundled catalog")
	}
	return r.SeedBooks(books)
}

// SeedBooks inserts books, skipping ids that already exist.
func (r *Repository) SeedBooks(books []Book) error {
	if len(books) == 0 {
		return nil
	}
	err := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&books).Error
	return errors.Wrap(err, "failed to seed catalog")
}

// Book returns the book with id.
func (r *Repository) Book(id string) (*Book, error) {
	var book Book
	err := r.db.First(&book, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(ErrBookNotFound, id)
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &book, nil
}

// Books returns the whole catalog ordered by title.
func (r *Repository) Books() ([]Book, error) {
	var books []Book
	if err := r.db.Order("title").Find(&books).Error; err != nil {
		return nil, errors.WithStack(err)
	}
	return books, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser registers a local account.
func (r *Repository) CreateUser(email, name, password string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, errors.New("email and password are required")
	}

	var count int64
	if err := r.db.Model(&User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, errors.WithStack(err)
	}
	if count > 0 {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash password")
	}
	if name == "" {
		name = email
	}

	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
	}
	if err := r.db.Create(user).Error; err != nil {
		return nil, errors.Wrap(err, "failed to create user")
	}
	return user, nil
}

// Authenticate checks email and password.
func (r *Repository) Authenticate(email, password string) (*User, error) {
	var user User
	err := r.db.First(&user, "email = ?", normalizeEmail(email)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// UserByID returns the user with id.
func (r *Repository) UserByID(id string) (*User, error) {
	var user User
	err := r.db.First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &user, nil
}

// Purchase records that userID bought bookID at the current price. Buying a
// book twice returns the original purchase.
func (r *Repository) Purchase(userID, bookID string) (*Purchase, error) {
	var purchase Purchase
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var book Book
		if err := tx.First(&book, "id = ?", bookID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrap(ErrBookNotFound, bookID)
			}
			return errors.WithStack(err)
		}
		if err := tx.Select("id").First(&User{}, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return errors.WithStack(err)
		}

		err := tx.First(&purchase, "user_id = ? AND book_id = ?", userID, bookID).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.WithStack(err)
		}

		purchase = Purchase{
			ID:     uuid.NewString(),
			UserID: userID,
			BookID: bookID,
			Price:  book.PriceAt(r.now()),
		}
		if err := tx.Create(&purchase).Error; err != nil {
			return errors.Wrap(err, "failed to record purchase")
		}
		return errors.WithStack(tx.Model(&Book{}).Where("id = ?", bookID).
			UpdateColumn("purchases", gorm.Expr("purchases + ?", 1)).Error)
	})
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

// HasPurchased reports whether userID owns bookID.
func (r *Repository) HasPurchased(userID, bookID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	var count int64
	err := r.db.Model(&Purchase{}).
		Where("user_id = ? AND book_id = ?", userID, bookID).
		Count(&count).Error
	if err != nil {
		return false, errors.WithStack(err)
	}
	return count > 0, nil
}

// PurchasedIDs returns the ids of every book userID owns.
func (r *Repository) PurchasedIDs(userID string) (map[string]bool, error) {
	owned := map[string]bool{}
	if userID == "" {
		return owned, nil
	}
	var ids []string
	if err := r.db.Model(&Purchase{}).Where("user_id = ?", userID).Pluck("book_id", &ids).Error; err != nil {
		return nil, errors.WithStack(err)
	}
	for _, id := range ids {
		owned[id] = true
	}
	return owned, nil
}
