package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edirooss/procexecd/internal/outputstore"
	"github.com/edirooss/procexecd/internal/supervisor"
	"github.com/edirooss/procexecd/pkg/procexec"
)

// ok and fail write the response envelope of spec.md §4.6: {"success": true,
// "data": ...} or {"success": false, "error": "..."}.
func ok(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, procexec.ErrProcessNotFound) {
		status = http.StatusNotFound
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

type handlers struct {
	sup   *supervisor.Supervisor
	store *outputstore.Store
}

// listProcesses handles GET /api/processes?status=&labels=
func (h *handlers) listProcesses(c *gin.Context) {
	status := procexec.Status(c.Query("status"))
	var labels []string
	if raw := c.Query("labels"); raw != "" {
		labels = strings.Split(raw, ",")
	}
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid status"})
		return
	}
	ok(c, http.StatusOK, h.sup.ListProcesses(status, labels))
}

// getProcess handles GET /api/processes/{pid}
func (h *handlers) getProcess(c *gin.Context) {
	rec, err := h.sup.GetProcess(c.Param("pid"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, rec)
}

// getOutput handles GET /api/processes/{pid}/output?tail=&since=&until=&with_stdout=&with_stderr=
func (h *handlers) getOutput(c *gin.Context) {
	pid := c.Param("pid")
	if _, err := h.sup.GetProcess(pid); err != nil {
		fail(c, err)
		return
	}

	q := procexec.GetQuery{}
	if raw := c.Query("tail"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid tail"})
			return
		}
		q.Tail = &n
	}
	if raw := c.Query("since"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid since"})
			return
		}
		q.Since = ts
	}
	if raw := c.Query("until"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid until"})
			return
		}
		q.Until = ts
	}

	withStdout := queryBool(c, "with_stdout", true)
	withStderr := queryBool(c, "with_stderr", false)

	data := gin.H{}
	if withStdout {
		entries, err := h.store.Get(pid, procexec.StreamStdout, q)
		if err != nil {
			fail(c, err)
			return
		}
		data["stdout"] = entries
	}
	if withStderr {
		entries, err := h.store.Get(pid, procexec.StreamStderr, q)
		if err != nil {
			fail(c, err)
			return
		}
		data["stderr"] = entries
	}
	ok(c, http.StatusOK, data)
}

type stopRequest struct {
	Force bool `json:"force"`
}

// stopProcess handles POST /api/processes/{pid}/stop
func (h *handlers) stopProcess(c *gin.Context) {
	var req stopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	pid := c.Param("pid")
	if err := h.sup.StopProcess(pid, req.Force, "stopped via management API"); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"pid": pid, "stopped": true})
}

// cleanProcess handles POST /api/processes/{pid}/clean — always 200, with
// a result field describing the outcome even if the pid is already gone.
func (h *handlers) cleanProcess(c *gin.Context) {
	pid := c.Param("pid")
	outcomes := h.sup.CleanProcesses([]string{pid})
	ok(c, http.StatusOK, gin.H{"pid": pid, "result": outcomes[pid]})
}

func queryBool(c *gin.Context, key string, def bool) bool {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}
