package credential

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Session is a row of the sessions table shared with the login service.
type Session struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"index;size:64"`
	Token     string `gorm:"size:2048"`
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (Session) TableName() string {
	return "sessions"
}

func OpenMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}
	return db, nil
}

// SQLProvider returns the token of the user's newest session that has not expired.
type SQLProvider struct {
	db     *gorm.DB
	userID string
	now    func() time.Time
}

func NewSQLProvider(db *gorm.DB, userID string) *SQLProvider {
	return &SQLProvider{db: db, userID: userID, now: time.Now}
}

func (p *SQLProvider) query(tx *gorm.DB, dest *Session) *gorm.DB {
	return tx.Where("user_id = ? AND expires_at > ?", p.userID, p.now()).
		Order("expires_at desc").
		First(dest)
}

func (p *SQLProvider) Credential(ctx context.Context) (string, error) {
	var session Session
	err := p.query(p.db.WithContext(ctx), &session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", errors.Wrapf(ErrUnavailable, "no live session for %s", p.userID)
	}
	if err != nil {
		return "", errors.Wrap(err, "query sessions")
	}
	return session.Token, nil
}
