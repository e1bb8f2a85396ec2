package obj

import "testing"

func TestObjectLifetime(t *testing.T) {
	o := &Object{Timestamps: []int64{120000, 180000, 240000}}
	if got := o.Life(); got != 3 {
		t.Errorf("Life() = %d, want 3", got)
	}
	if got := o.StartTime(); got != 120000 {
		t.Errorf("StartTime() = %d, want 120000", got)
	}
	if got := o.StopTime(); got != 240000 {
		t.Errorf("StopTime() = %d, want 240000", got)
	}

	empty := &Object{}
	if empty.Life() != 0 || empty.StartTime() != 0 || empty.StopTime() != 0 {
		t.Errorf("empty object lifetime = (%d, %d, %d), want zeros",
			empty.Life(), empty.StartTime(), empty.StopTime())
	}
}

func TestObjectListByID(t *testing.T) {
	a := &Object{ID: 4, Timestamps: []int64{0}}
	b := &Object{ID: 7, Timestamps: []int64{0, 60000}}
	c := &Object{ID: 4, Timestamps: []int64{0, 60000, 120000}}
	list := ObjectList{a, b, c}

	hits := list.ByID(4)
	if len(hits) != 2 || hits[0] != a || hits[1] != c {
		t.Errorf("ByID(4) = %v, want [a c]", hits)
	}
	if got := list.ByID(99); got != nil {
		t.Errorf("ByID(99) = %v, want nil", got)
	}
}

func TestObjectListLongest(t *testing.T) {
	a := &Object{ID: 1, Timestamps: []int64{0}}
	b := &Object{ID: 2, Timestamps: []int64{0, 60000, 120000}}
	list := ObjectList{a, b}

	if got := list.Longest(); got != b {
		t.Errorf("Longest() = %v, want object 2", got)
	}
	if got := (ObjectList{}).Longest(); got != nil {
		t.Errorf("Longest() of empty list = %v, want nil", got)
	}
}

func TestClassificationString(t *testing.T) {
	tests := []struct {
		class Classification
		want  string
	}{
		{ClassPoint, "point"},
		{ClassCar, "car"},
		{ClassTruck, "truck"},
		{ClassPedestrian, "pedestrian"},
		{ClassMotorcycle, "motorcycle"},
		{ClassBicycle, "bicycle"},
		{ClassWide, "wide"},
		{Classification(42), "unclassified"},
	}
	for _, tt := range tests {
		if got := tt.class.String(); got != tt.want {
			t.Errorf("Classification(%d).String() = %q, want %q", int(tt.class), got, tt.want)
		}
	}
}

func TestSignalString(t *testing.T) {
	tests := []struct {
		sig  Signal
		want string
	}{
		{SignalDistX, "dist_x"},
		{SignalDistY, "dist_y"},
		{SignalVelX, "vel_x"},
		{SignalOrient, "orientation"},
		{Signal(42), "signal(42)"},
	}
	for _, tt := range tests {
		if got := tt.sig.String(); got != tt.want {
			t.Errorf("Signal.String() = %q, want %q", got, tt.want)
		}
	}
}
