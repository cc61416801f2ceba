package ulogger

// TestLogger is a silent Logger for use in unit tests, matching the
// go-p2p.TestLogger{} convention used throughout the teacher's test suite.
type TestLogger struct{}

func (TestLogger) Debugf(string, ...interface{}) {}
func (TestLogger) Infof(string, ...interface{})  {}
func (TestLogger) Warnf(string, ...interface{})  {}
func (TestLogger) Errorf(string, ...interface{}) {}
func (TestLogger) Fatalf(string, ...interface{}) {}
func (TestLogger) LogLevel() int                 { return 0 }
func (l TestLogger) With(...Field) Logger        { return l }
func (l TestLogger) New(string) Logger           { return l }
