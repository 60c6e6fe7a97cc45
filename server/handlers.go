package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"os"

	"github.com/nicolagi/blogd/posts"
	"github.com/tidwall/gjson"
)

const (
	textPlain       = "text/plain; charset=utf-8"
	applicationJSON = "application/json"
)

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r)
	if !allowed(w, r, logger, http.MethodGet, http.MethodHead) {
		return
	}
	name := r.URL.Path
	if name == "/" {
		name = "/" + indexFile
	}
	notFound := func(err error) {
		logger.WithField("err", err).Debug("Not found")
		reply(w, logger, http.StatusNotFound, textPlain, []byte(http.StatusText(http.StatusNotFound)+"\n"))
	}
	// http.Dir keeps names from escaping the root.
	f, err := http.Dir(s.opts.root).Open(name)
	if err != nil {
		if os.IsPermission(err) {
			logger.WithField("err", err).Warn("Forbidden")
			reply(w, logger, http.StatusForbidden, textPlain, []byte(http.StatusText(http.StatusForbidden)+"\n"))
			return
		}
		notFound(err)
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			logger.WithField("err", err).Warn("Could not close file")
		}
	}()
	info, err := f.Stat()
	if err != nil {
		logger.WithField("err", err).Error("Could not stat file")
		reply(w, logger, http.StatusInternalServerError, textPlain, []byte(http.StatusText(http.StatusInternalServerError)+"\n"))
		return
	}
	if info.IsDir() {
		notFound(fmt.Errorf("%q is a directory", name))
		return
	}
	logger.Debug("Success")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (s *Server) handlePosts(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r)
	if !allowed(w, r, logger, http.MethodGet, http.MethodHead) {
		return
	}
	doc, err := s.opts.posts.Load()
	if err != nil {
		// Details stay in the log.
		logger.WithField("err", err).Error("Could not load posts")
		reply(w, logger, http.StatusInternalServerError, textPlain, []byte(http.StatusText(http.StatusInternalServerError)+"\n"))
		return
	}
	logger.Debug("Success")
	reply(w, logger, http.StatusOK, applicationJSON, doc)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r)
	if !allowed(w, r, logger, http.MethodPost) {
		return
	}
	status, body := func() (int, []byte) {
		value, err := ioutil.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.maxBodySize))
		if err == nil {
			err = s.opts.posts.Save(value)
		}
		if errors.Is(err, posts.ErrUnauthorized) {
			logger.Warn("Wrong password")
			return http.StatusUnauthorized, []byte(http.StatusText(http.StatusUnauthorized))
		}
		if err != nil {
			logger.WithField("err", err).Error("Could not save posts")
			return http.StatusInternalServerError, []byte(fmt.Sprintf("Error saving posts: %v", err))
		}
		logger.Info("Posts saved")
		return http.StatusOK, []byte("Posts saved successfully")
	}()
	reply(w, logger, status, textPlain, body)
}

type verifyResponse struct {
	Success bool `json:"success"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r)
	if !allowed(w, r, logger, http.MethodPost) {
		return
	}
	status, success := func() (int, bool) {
		value, err := ioutil.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.maxBodySize))
		if err == nil && !gjson.ValidBytes(value) {
			err = errors.New("body is not JSON")
		}
		if err != nil {
			logger.WithField("err", err).Warn("Bad request")
			return http.StatusBadRequest, false
		}
		// A password that is not a string is just another wrong password.
		password := gjson.GetBytes(value, "password")
		if password.Type != gjson.String || !s.opts.posts.Verify(password.Str) {
			logger.Warn("Wrong password")
			return http.StatusUnauthorized, false
		}
		logger.Debug("Success")
		return http.StatusOK, true
	}()
	body, err := json.Marshal(verifyResponse{Success: success})
	if err != nil {
		logger.WithField("err", err).Error("Could not encode response")
		reply(w, logger, http.StatusInternalServerError, textPlain, nil)
		return
	}
	reply(w, logger, status, applicationJSON, body)
}
