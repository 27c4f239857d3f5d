package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestClassifyDBError_Nil(t *testing.T) {
	assert.Nil(t, ClassifyDBError(nil))
}

func TestClassifyDBError_RecordNotFound(t *testing.T) {
	dbErr := ClassifyDBError(fmt.Errorf("query failed: %w", gorm.ErrRecordNotFound))
	assert.Equal(t, ErrorTypeNotFound, dbErr.Type)
	assert.True(t, IsNotFoundError(gorm.ErrRecordNotFound))
}

func TestClassifyDBError_Deadlock(t *testing.T) {
	mysqlErr := &mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"}
	dbErr := ClassifyDBError(mysqlErr)
	assert.Equal(t, ErrorTypeDeadlock, dbErr.Type)
	assert.Equal(t, uint16(1213), dbErr.MySQLErrCode)
	assert.True(t, IsDeadlockError(mysqlErr))
}

func TestClassifyDBError_OtherMySQLError(t *testing.T) {
	mysqlErr := &mysql.MySQLError{Number: 1146, Message: "Table 'opspulse.log_entries' doesn't exist"}
	dbErr := ClassifyDBError(mysqlErr)
	assert.Equal(t, ErrorTypeUnknown, dbErr.Type)
	assert.Equal(t, uint16(1146), dbErr.MySQLErrCode)
}

func TestClassifyDBError_ConnectionErrors(t *testing.T) {
	cases := []string{
		"dial tcp 127.0.0.1:3306: connect: connection refused",
		"invalid connection",
		"read tcp 10.0.0.1:53412: i/o timeout",
		"driver: Connection Reset by peer",
	}
	for _, msg := range cases {
		assert.True(t, IsConnectionError(errors.New(msg)), msg)
	}
}

func TestClassifyDBError_UnknownError(t *testing.T) {
	dbErr := ClassifyDBError(errors.New("something odd"))
	assert.Equal(t, ErrorTypeUnknown, dbErr.Type)
	assert.False(t, IsConnectionError(errors.New("something odd")))
}

func TestDatabaseError_ErrorAndUnwrap(t *testing.T) {
	inner := &mysql.MySQLError{Number: 1213, Message: "Deadlock found"}
	dbErr := ClassifyDBError(inner)

	assert.Contains(t, dbErr.Error(), "1213")
	assert.ErrorIs(t, dbErr, inner)
}
