// Package pgtest runs an in-process PostgreSQL wire-protocol server that
// records inserted rows. lib/pq connects to it like a real database, and
// tests can make it refuse logins or drop sessions mid-transaction.
package pgtest

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/jackc/pgproto3/v2"
)

const (
	OIDInt8 uint32 = 20
	OIDText uint32 = 25

	txIdle  byte = 'I'
	txBlock byte = 'T'
)

var paramRef = regexp.MustCompile(`\$(\d+)`)

type Server struct {
	listener net.Listener
	logger   *slog.Logger

	mu          sync.Mutex
	rows        [][]string
	refuse      int
	dropInserts int
	sessions    int
	conns       map[net.Conn]struct{}

	wg sync.WaitGroup
}

// Start listens on a random loopback port. A nil logger uses slog.Default().
func Start(logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	s := &Server{
		listener: listener,
		logger:   logger,
		conns:    make(map[net.Conn]struct{}),
	}

	s.wg.Add(1)
	go s.serve()
	return s, nil
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// DSN returns a lib/pq connection string for this server.
func (s *Server) DSN() string {
	return fmt.Sprintf("postgres://user:password@%s/workshopdb?sslmode=disable", s.Addr())
}

// RefuseNext makes the next n logins fail with a FATAL startup error.
func (s *Server) RefuseNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refuse = n
}

// DropNextInserts closes the connection when each of the next n INSERTs is
// executed. The open transaction is lost with it.
func (s *Server) DropNextInserts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropInserts = n
}

// KillConnections closes every live client connection.
func (s *Server) KillConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.Close()
	}
}

// Rows returns the committed INSERT parameters in commit order.
func (s *Server) Rows() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.rows))
	copy(out, s.rows)
	return out
}

// Sessions counts logins that completed the handshake.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions
}

func (s *Server) Close() error {
	err := s.listener.Close()
	s.KillConnections()
	s.wg.Wait()
	return err
}

func (s *Server) serve() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.conns, conn)
				s.mu.Unlock()
				conn.Close()
			}()
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) takeRefusal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refuse > 0 {
		s.refuse--
		return true
	}
	return false
}

func (s *Server) takeDrop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dropInserts > 0 {
		s.dropInserts--
		return true
	}
	return false
}

func (s *Server) commit(rows [][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, rows...)
}

func (s *Server) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// session is the per-connection protocol state.
type session struct {
	backend  *pgproto3.Backend
	txStatus byte
	pending  [][]string
	stmt     string
	params   []string
}

func (s *Server) handshake(conn net.Conn) (*pgproto3.Backend, error) {
	backend := pgproto3.NewBackend(pgproto3.NewChunkReader(conn), conn)

	for {
		msg, err := backend.ReceiveStartupMessage()
		if err != nil {
			return nil, fmt.Errorf("failed to receive startup message: %w", err)
		}

		switch msg.(type) {
		case *pgproto3.SSLRequest:
			if _, err := conn.Write([]byte{'N'}); err != nil {
				return nil, fmt.Errorf("failed to send SSL rejection: %w", err)
			}
			continue
		case *pgproto3.StartupMessage:
		default:
			return nil, fmt.Errorf("unexpected startup message %T", msg)
		}
		break
	}

	if s.takeRefusal() {
		backend.Send(&pgproto3.ErrorResponse{
			Severity: "FATAL",
			Code:     "57P03",
			Message:  "the database system is starting up",
		})
		return nil, errors.New("login refused")
	}

	s.mu.Lock()
	s.sessions++
	s.mu.Unlock()

	startup := []pgproto3.BackendMessage{
		&pgproto3.AuthenticationOk{},
		&pgproto3.ParameterStatus{Name: "server_version", Value: "14.0"},
		&pgproto3.ParameterStatus{Name: "client_encoding", Value: "UTF8"},
		&pgproto3.ReadyForQuery{TxStatus: txIdle},
	}
	for _, m := range startup {
		if err := backend.Send(m); err != nil {
			return nil, fmt.Errorf("failed to send %T: %w", m, err)
		}
	}
	return backend, nil
}

func (s *Server) handleConnection(conn net.Conn) {
	backend, err := s.handshake(conn)
	if err != nil {
		s.logger.Debug("pgtest handshake ended", "error", err)
		return
	}

	sess := &session{backend: backend, txStatus: txIdle}

	for {
		msg, err := backend.Receive()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debug("pgtest receive failed", "error", err)
			}
			return
		}

		var keep bool
		switch v := msg.(type) {
		case *pgproto3.Query:
			keep = s.simpleQuery(sess, v.String)
		case *pgproto3.Parse:
			sess.stmt = v.Query
			keep = send(sess, &pgproto3.ParseComplete{})
		case *pgproto3.Describe:
			oids := make([]uint32, countParams(sess.stmt))
			for i := range oids {
				oids[i] = OIDText
			}
			keep = send(sess, &pgproto3.ParameterDescription{ParameterOIDs: oids}, &pgproto3.NoData{})
		case *pgproto3.Bind:
			sess.params = make([]string, len(v.Parameters))
			for i, p := range v.Parameters {
				sess.params[i] = string(p)
			}
			keep = send(sess, &pgproto3.BindComplete{})
		case *pgproto3.Execute:
			keep = s.execute(sess)
		case *pgproto3.Close:
			keep = send(sess, &pgproto3.CloseComplete{})
		case *pgproto3.Sync:
			keep = send(sess, &pgproto3.ReadyForQuery{TxStatus: sess.txStatus})
		case *pgproto3.Terminate:
			return
		default:
			s.logger.Warn("pgtest unknown message type", "type", fmt.Sprintf("%T", msg))
			keep = true
		}

		if !keep {
			return
		}
	}
}

func send(sess *session, msgs ...pgproto3.BackendMessage) bool {
	for _, m := range msgs {
		if err := sess.backend.Send(m); err != nil {
			return false
		}
	}
	return true
}

func (s *Server) simpleQuery(sess *session, sql string) bool {
	upper := strings.ToUpper(strings.TrimSpace(sql))

	switch {
	case upper == "" || upper == ";":
		return send(sess, &pgproto3.CommandComplete{CommandTag: []byte("SELECT 0")}, &pgproto3.ReadyForQuery{TxStatus: sess.txStatus})

	case strings.HasPrefix(upper, "BEGIN"):
		sess.txStatus = txBlock
		sess.pending = nil
		return send(sess, &pgproto3.CommandComplete{CommandTag: []byte("BEGIN")}, &pgproto3.ReadyForQuery{TxStatus: txBlock})

	case strings.HasPrefix(upper, "COMMIT"):
		s.commit(sess.pending)
		sess.pending = nil
		sess.txStatus = txIdle
		return send(sess, &pgproto3.CommandComplete{CommandTag: []byte("COMMIT")}, &pgproto3.ReadyForQuery{TxStatus: txIdle})

	case strings.HasPrefix(upper, "ROLLBACK"):
		sess.pending = nil
		sess.txStatus = txIdle
		return send(sess, &pgproto3.CommandComplete{CommandTag: []byte("ROLLBACK")}, &pgproto3.ReadyForQuery{TxStatus: txIdle})

	case strings.HasPrefix(upper, "SELECT COUNT(*)"):
		return send(sess,
			&pgproto3.RowDescription{Fields: []pgproto3.FieldDescription{{
				Name:         []byte("count"),
				DataTypeOID:  OIDInt8,
				DataTypeSize: 8,
				TypeModifier: -1,
			}}},
			&pgproto3.DataRow{Values: [][]byte{[]byte(strconv.Itoa(s.count()))}},
			&pgproto3.CommandComplete{CommandTag: []byte("SELECT 1")},
			&pgproto3.ReadyForQuery{TxStatus: sess.txStatus},
		)

	case strings.HasPrefix(upper, "CREATE"):
		return send(sess, &pgproto3.CommandComplete{CommandTag: []byte("CREATE TABLE")}, &pgproto3.ReadyForQuery{TxStatus: sess.txStatus})
	}

	return send(sess,
		&pgproto3.ErrorResponse{Severity: "ERROR", Code: "42601", Message: "pgtest: unsupported statement"},
		&pgproto3.ReadyForQuery{TxStatus: sess.txStatus},
	)
}

func (s *Server) execute(sess *session) bool {
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sess.stmt)), "INSERT") {
		return send(sess, &pgproto3.ErrorResponse{Severity: "ERROR", Code: "42601", Message: "pgtest: unsupported statement"})
	}

	if s.takeDrop() {
		return false
	}

	if sess.txStatus == txBlock {
		sess.pending = append(sess.pending, sess.params)
	} else {
		s.commit([][]string{sess.params})
	}
	return send(sess, &pgproto3.CommandComplete{CommandTag: []byte("INSERT 0 1")})
}

func countParams(sql string) int {
	n := 0
	for _, m := range paramRef.FindAllStringSubmatch(sql, -1) {
		if i, err := strconv.Atoi(m[1]); err == nil && i > n {
			n = i
		}
	}
	return n
}
