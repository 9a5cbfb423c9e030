package main

import (
	"fmt"
	"os"

	"github.com/noah-isme/lesson-scheduler/internal/dto"
	"github.com/noah-isme/lesson-scheduler/internal/models"
	"github.com/noah-isme/lesson-scheduler/pkg/config"
)

// runInputs is what the solve and enqueue commands read from disk.
type runInputs struct {
	csv     string
	length  int
	options config.RunOptions
}

func readInputs(csvPath, optionsPath string, length int) (*runInputs, error) {
	data, err := os.ReadFile(csvPath)
	if err != nil {
		return nil, fmt.Errorf("read availability: %w", err)
	}
	opts, err := config.LoadRunOptions(optionsPath)
	if err != nil {
		return nil, err
	}
	if length <= 0 {
		length = opts.DefaultLessonLength
	}
	return &runInputs{csv: string(data), length: length, options: opts}, nil
}

func (in *runInputs) availability() *models.Availability {
	return &models.Availability{CSVData: in.csv, DefaultLength: in.length}
}

func (in *runInputs) availabilityRequest() dto.CreateAvailabilityRequest {
	return dto.CreateAvailabilityRequest{CSVData: in.csv, DefaultLength: in.length}
}

func (in *runInputs) solverOptions() *models.SolverOptions {
	o := in.options
	return &models.SolverOptions{
		ArriveLateBonus:                 o.ArriveLateBonus,
		LeaveEarlyBonus:                 o.LeaveEarlyBonus,
		DayOffBonus:                     o.DayOffBonus,
		PupilPreferencePenaltyList:      o.PupilPreferencePenaltyList,
		InstructorPreferencePenaltyList: o.InstructorPreferencePenaltyList,
		NoBreakPenalty:                  o.NoBreakPenalty,
		ComplexConstraints:              o.ComplexConstraints,
	}
}

func (in *runInputs) optionsRequest() dto.CreateSolverOptionsRequest {
	o := in.options
	return dto.CreateSolverOptionsRequest{
		ArriveLateBonus:                 o.ArriveLateBonus,
		LeaveEarlyBonus:                 o.LeaveEarlyBonus,
		DayOffBonus:                     o.DayOffBonus,
		PupilPreferencePenaltyList:      o.PupilPreferencePenaltyList,
		InstructorPreferencePenaltyList: o.InstructorPreferencePenaltyList,
		NoBreakPenalty:                  o.NoBreakPenalty,
		ComplexConstraints:              o.ComplexConstraints,
	}
}
