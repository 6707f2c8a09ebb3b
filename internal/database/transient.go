package database

import (
	"database/sql/driver"
	"errors"
	"net"
	"strings"
	"syscall"

	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/sijms/go-ora/v2/network"
)

var (
	// deadlock, lock wait timeout, too many connections, server gone, lost connection
	mysqlTransient = map[uint16]bool{1213: true, 1205: true, 1040: true, 2006: true, 2013: true}

	// deadlock, serialization failure, lock not available, too many connections, admin/crash shutdown
	pgTransient = map[string]bool{"40P01": true, "40001": true, "55P03": true, "53300": true, "57P01": true, "57P02": true, "57P03": true}

	// deadlock victim, lock request timeout, transport-level and Azure throttling errors
	mssqlTransient = map[int32]bool{1205: true, 1222: true, -2: true, 233: true, 10053: true, 10054: true, 10060: true, 40197: true, 40501: true, 40613: true}

	// ORA-00060 deadlock, ORA-00051 resource wait timeout, end-of-file/not connected,
	// TNS timeouts and listener failures, session/process limits
	oracleTransient = map[int]bool{60: true, 51: true, 3113: true, 3114: true, 3135: true, 12170: true, 12541: true, 12537: true, 12571: true, 18: true, 20: true}

	transientMessages = []string{
		"deadlock",
		"lock wait timeout",
		"too many connections",
		"connection reset",
		"connection refused",
		"broken pipe",
		"i/o timeout",
		"bad connection",
		"server closed the connection",
	}
)

// IsTransient reports whether err is worth retrying: lost or refused
// connections, deadlocks, lock-wait timeouts and connection-count exhaustion.
// Constraint violations, syntax errors and the like are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return mysqlTransient[myErr.Number]
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "08" || pgTransient[string(pqErr.Code)]
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "08") || pgTransient[pgErr.Code]
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}

	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return mssqlTransient[msErr.Number]
	}

	var oraErr *network.OracleError
	if errors.As(err, &oraErr) {
		return oracleTransient[oraErr.ErrCode]
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, m := range transientMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
