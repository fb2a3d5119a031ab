package encoder

import (
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
)

// RecordingTimeFormat names recording directories.
const RecordingTimeFormat = "20060102_150405.000"

// SetDataRoot changes the directory all output goes under.
func (q *Queue) SetDataRoot(root string) {
	q.dirMu.Lock()
	defer q.dirMu.Unlock()
	q.dataRoot = root
}

// SetSession changes the session subdirectory. Files already being written keep the name they
// started with.
func (q *Queue) SetSession(session string) {
	q.dirMu.Lock()
	defer q.dirMu.Unlock()
	q.session = session
}

// StartRecording starts a new recording subdirectory named after the current time and
// returns its name.
func (q *Queue) StartRecording() string {
	name := q.clk.Now().UTC().Format(RecordingTimeFormat)
	q.SetRecording(name)
	return name
}

// SetRecording changes the recording subdirectory.
func (q *Queue) SetRecording(recording string) {
	q.dirMu.Lock()
	defer q.dirMu.Unlock()
	q.recording = recording
}

// SetCameraID changes the camera the queued frames belong to.
func (q *Queue) SetCameraID(id int) {
	q.dirMu.Lock()
	defer q.dirMu.Unlock()
	q.cameraID = id
}

// CameraID returns the camera the queued frames belong to.
func (q *Queue) CameraID() int {
	q.dirMu.RLock()
	defer q.dirMu.RUnlock()
	return q.cameraID
}

// Session returns the current session name.
func (q *Queue) Session() string {
	q.dirMu.RLock()
	defer q.dirMu.RUnlock()
	return q.session
}

// Recording returns the current recording name.
func (q *Queue) Recording() string {
	q.dirMu.RLock()
	defer q.dirMu.RUnlock()
	return q.recording
}

// OutputDirectory composes data root, session, recording and camera into the directory frames
// are stored in. The camera level is left out if skipCameraSubdir is set or only one camera is
// active; empty names are left out too. With create set, missing directories are created and a
// level that cannot be created is skipped so that frames land in its parent instead.
func (q *Queue) OutputDirectory(create, skipCameraSubdir bool) string {
	q.dirMu.RLock()
	root, session, recording := q.dataRoot, q.session, q.recording
	cameraID, numCameras := q.cameraID, q.numCameras
	q.dirMu.RUnlock()

	levels := []string{session, recording}
	if !skipCameraSubdir && numCameras > 1 {
		levels = append(levels, strconv.Itoa(cameraID))
	}

	dir := root
	if create && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			q.logger.Warnw("cannot create data root", "dir", dir, "error", err)
		}
	}
	for _, level := range levels {
		if level == "" {
			continue
		}
		next := filepath.Join(dir, level)
		if create {
			if err := os.Mkdir(next, 0o750); err != nil && !errors.Is(err, fs.ErrExist) {
				q.logger.Warnw("cannot create output directory, using its parent", "dir", next, "error", err)
				continue
			}
		}
		dir = next
	}
	return dir
}
